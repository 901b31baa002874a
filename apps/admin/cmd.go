package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/abiaedu/portal/core/report"
	"github.com/abiaedu/portal/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	usrRepo   user.Repository
	reportSvc *report.Service
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                        - run a goose command (up, down, status, redo, version, ...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -email EMAIL [-analyst]    - create an approved account; the password is prompted")
	fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                    - reset an account's password; the password is prompted")
	fmt.Fprintln(cli.out, "  hashpassword                                  - print the bcrypt hash of the admin password")
	fmt.Fprintln(cli.out, "  export -out FILE [-status S] [-district D,..] [-from DATE] [-to DATE] [-search Q] - write submissions to xlsx")
}

// promptPassword reads a password without echo. An empty password prints usage.
func (cli *commandLine) promptPassword(fs *flag.FlagSet, prompt string) (string, error) {
	fmt.Fprint(cli.out, prompt)
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		fs.Usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}
	ctx := context.Background()

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserAnalyst := addUserCmd.Bool("analyst", false, "Grant the analyst role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	hashPasswordCmd := flag.NewFlagSet("hashpassword", flag.ExitOnError)

	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	exportOut := exportCmd.String("out", "", "The xlsx file to write.")
	exportStatus := exportCmd.String("status", "", "All, Pending, Approved or Rejected.")
	exportDistricts := exportCmd.String("district", "", "Comma separated district names.")
	exportFrom := exportCmd.String("from", "", "Earliest submission date, YYYY-MM-DD.")
	exportTo := exportCmd.String("to", "", "Latest submission date (inclusive), YYYY-MM-DD.")
	exportSearch := exportCmd.String("search", "", "School name contains.")

	for _, fs := range []*flag.FlagSet{addUserCmd, resetPasswordCmd, hashPasswordCmd, exportCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(ctx, args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserName == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(addUserCmd, "Enter password:")
		if err != nil {
			return err
		}
		role := user.RoleSchool
		if *addUserAnalyst {
			role = user.RoleAnalyst
		}
		return cli.addUser(ctx, *addUserName, *addUserEmail, pwd, role)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword(resetPasswordCmd, "Enter password:")
		if err != nil {
			return err
		}
		return cli.resetPassword(ctx, *resetPasswordEmail, pwd)

	case "hashpassword":
		if err := hashPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		pwd, err := cli.promptPassword(hashPasswordCmd, "Enter admin password:")
		if err != nil {
			return err
		}
		return cli.hashPassword(pwd)

	case "export":
		if err := exportCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportOut == "" {
			exportCmd.Usage()
			return errHelp
		}
		filter := report.ExportFilter{Status: *exportStatus, Search: *exportSearch}
		if *exportDistricts != "" {
			filter.Districts = strings.Split(*exportDistricts, ",")
		}
		if err := filter.From.UnmarshalParam(*exportFrom); err != nil {
			return err
		}
		if err := filter.To.UnmarshalParam(*exportTo); err != nil {
			return err
		}
		return cli.export(ctx, filter, *exportOut)

	default:
		cli.printUsage()
		return errHelp
	}
}
