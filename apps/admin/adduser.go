package main

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eminingcampus/campus/core"
	"github.com/eminingcampus/campus/core/user"
)

// addUser updates or creates an active user.User with the given roles.
func (cli *commandLine) addUser(name, uname, email, pwd string, roles []string) error {
	ctx := context.Background()
	uname = core.CleanString(uname, true /* lower */)
	email = core.CleanString(email, true /* lower */)
	if name = core.CleanString(name); name == "" {
		name = uname
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: uname})
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	found := err == nil
	if !found {
		if usr, err = cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email}); err != nil && !core.IsNotFound(err) {
			return err
		}
		found = err == nil
	}

	now := time.Now().UTC()
	if !found {
		usr = user.User{ID: uuid.New().String(), CreatedAt: now}
	}
	usr.Name = name
	usr.Username = uname
	usr.Email = email
	usr.Roles = roles
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if found {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
