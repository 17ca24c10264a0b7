package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/payment"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/storage/database"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	conf       *core.Config
	db         *database.DB
	usrSvc     *user.Service
	paymentSvc *payment.Service
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME -role ROLE - create or update a user")
	fmt.Fprintln(cli.out, "  reconcile - verify every pending payment order once")
	fmt.Fprintln(cli.out, "  token -email EMAIL [-ttl DURATION] - print an API token for a user (development)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserCmd.SetOutput(cli.out)
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserRole := addUserCmd.String("role", user.RoleStudent.String(), "STUDENT or ADMIN.")

	tokenCmd := flag.NewFlagSet("token", flag.ContinueOnError)
	tokenCmd.SetOutput(cli.out)
	tokenEmail := tokenCmd.String("email", "", "The user's email.")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "How long the token is valid.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Fprintln(cli.out, "Usage: migrate COMMAND [ARGS]")
			return errHelp
		}
		return cli.migrate(args[2:])
	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, *addUserRole)
	case "reconcile":
		return cli.reconcile()
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenEmail == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenEmail, *tokenTTL)
	default:
		cli.printUsage()
		return errHelp
	}
}
