package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
)

// token prints an API token for an existing, unblocked user.
func (cli *commandLine) token(email string, ttl time.Duration) error {
	usr, err := cli.usrSvc.GetByEmail(context.Background(), email)
	if err != nil {
		return err
	}
	if usr.Blocked {
		return errors.Errorf("%s is blocked", usr.Email)
	}
	token, err := echoapi.GenerateToken(cli.conf.Server.JWTSecret, echoapi.NewClaims(usr, cli.conf.Server.JWTIssuer, ttl))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
