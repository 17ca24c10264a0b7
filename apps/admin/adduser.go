package main

import (
	"context"
	"fmt"

	"github.com/trezcool/darasa/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(name, email, role string) error {
	usr, err := cli.usrSvc.EnsureUser(context.Background(), user.NewUser{
		Name:  name,
		Email: email,
		Role:  user.Role(role),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s <%s> %s (%s)\n", usr.Name, usr.Email, usr.Role, usr.ID)
	return nil
}
