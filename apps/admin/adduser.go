package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/abiaedu/portal/core"
	"github.com/abiaedu/portal/core/user"
)

// addUser creates a verified and approved account, or updates the one with the same email.
func (cli *commandLine) addUser(ctx context.Context, name, email, pwd, role string) error {
	name = core.CollapseSpaces(name)
	email = core.CleanString(email, true /* lower */)
	now := time.Now().UTC()

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{ID: uuid.NewString(), Email: email, CreatedAt: now}
	}

	usr.Name = name
	usr.Role = role
	usr.Verified = true
	usr.Approved = true
	usr.Blocked = false
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
	} else {
		_, err = cli.usrRepo.CreateUser(ctx, usr)
	}
	return err
}
