package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/eminingcampus/campus/core/order"
	"github.com/eminingcampus/campus/core/user"
	"github.com/eminingcampus/campus/storage/database"
)

var (
	readPasswordFunc = term.ReadPassword      // mockable
	gooseRunFunc     = database.RunMigrations // mockable

	errHelp = errors.New("help provided")
)

type (
	orderAdmin interface {
		Refund(ctx context.Context, reference string) (order.Order, error)
		ExpireStale(ctx context.Context, olderThan time.Duration) ([]string, error)
	}

	courseIndexer interface {
		ReindexCourses(ctx context.Context) (int, error)
	}

	commandLine struct {
		db      *sql.DB
		usrRepo user.Repository
		orders  orderAdmin
		courses courseIndexer // nil when search is not configured
	}
)

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run goose migration COMMAND (up, down, status, ...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-name NAME] [-admin] [-instructor] - add or update a user")
	fmt.Println("  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Println("  refundorder -reference ORDER_NUMBER - mark a completed order refunded")
	fmt.Println("  expireorders [-older-than DURATION] - fail orders stuck in processing")
	fmt.Println("  reindexcourses - rebuild the course search index")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username.")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name (defaults to username).")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")
	addUserInstructor := addUserCmd.Bool("instructor", false, "Grant the instructor role.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	refundCmd := flag.NewFlagSet("refundorder", flag.ContinueOnError)
	refundRef := refundCmd.String("reference", "", "The order number.")

	expireCmd := flag.NewFlagSet("expireorders", flag.ContinueOnError)
	expireOlderThan := expireCmd.Duration("older-than", time.Hour, "Fail orders processing for longer than this.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" || *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		roles := []string{user.RoleStudent}
		if *addUserInstructor {
			roles = append(roles, user.RoleInstructor)
		}
		if *addUserAdmin {
			roles = user.AllRoles
		}
		return cli.addUser(*addUserName, *addUserUname, *addUserEmail, pwd, roles)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "refundorder":
		if err := refundCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *refundRef == "" {
			refundCmd.Usage()
			return errHelp
		}
		return cli.refundOrder(*refundRef)

	case "expireorders":
		if err := expireCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.expireOrders(*expireOlderThan)

	case "reindexcourses":
		return cli.reindexCourses()

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
