package main

import (
	"context"
	"fmt"

	"github.com/trezcool/academia/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate); err != nil {
		return err
	}
	usr, err := cli.usrSvc.UpdateOrCreate(context.Background(), nu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "user %q saved (id %s, roles %v)\n", usr.Username, usr.ID, usr.Roles)
	return nil
}
