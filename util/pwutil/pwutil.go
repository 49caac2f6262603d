// Package pwutil reads the repository password from external helpers.
package pwutil

import (
	"context"
	"os/exec"
	"os/user"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// ReadPasswordFromHelper executes `helperCommand` via the shell and returns
// its first line of output as password. The command gets SKIFF_PATH and HOME
// in its environment, so helpers like `pass` can locate their store.
func ReadPasswordFromHelper(basePath, helperCommand string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	currentUser, err := user.Current()
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", helperCommand)
	cmd.Env = append(cmd.Env, "SKIFF_PATH="+basePath)
	cmd.Env = append(cmd.Env, "HOME="+currentUser.HomeDir)

	data, err := cmd.Output()
	if err != nil {
		log.Warningf("password helper failed: %v: %s", err, data)
		return "", err
	}

	return strings.Trim(string(data), "\n"), nil
}
