package main

import (
	"context"
	"fmt"

	echoapi "github.com/trezcool/academia/apps/api/echo"
)

// token prints a signed API token for an active user.
func (cli *commandLine) token(uname string) error {
	usr, err := cli.usrSvc.GetByUsername(context.Background(), uname)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return fmt.Errorf("user %q is deactivated", usr.Username)
	}
	token, err := echoapi.GenerateToken(cli.conf, echoapi.GetUserClaims(cli.conf, usr))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cli.out, token)
	return nil
}
