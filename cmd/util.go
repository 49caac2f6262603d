package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/sahib/config"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/sahib/skiff/cmd/pwd"
	"github.com/sahib/skiff/repo"
	"github.com/sahib/skiff/util"
	"github.com/sahib/skiff/util/pwutil"
)

// ExitCode is an error that maps a message to a exit code of the program.
type ExitCode struct {
	Code    int
	Message string
}

func (err ExitCode) Error() string {
	return err.Message
}

// guessRepoFolder returns the repository path the user most likely means.
func guessRepoFolder(ctx *cli.Context) string {
	if folder := ctx.GlobalString("repo"); folder != "" {
		return folder
	}

	folder, err := homedir.Expand("~/.skiff")
	if err != nil {
		return ".skiff"
	}

	return folder
}

func mustAbsPath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		fmt.Printf("Unable to make path absolute: %v\n", err)
		os.Exit(BadArgs)
	}

	return absPath
}

func yesify(val bool) string {
	if val {
		return color.GreenString("yes")
	}

	return color.RedString("no")
}

func logVerbose(ctx *cli.Context, format string, args ...interface{}) {
	if ctx.GlobalBool("verbose") {
		fmt.Fprintf(os.Stderr, "-- %s\n", fmt.Sprintf(format, args...))
	}
}

// readPassword asks for the repository password, in order of preference:
// the --password flag (or SKIFF_PASSWORD), the password_command helper
// and finally an interactive prompt. Unencrypted repositories need none.
func readPassword(ctx *cli.Context, folder string, cfg *config.Config) (string, error) {
	if password := ctx.GlobalString("password"); password != "" {
		return password, nil
	}

	if cfg.String("data.cipher") == "none" {
		return "", nil
	}

	if helper := cfg.String("repo.password_command"); helper != "" {
		logVerbose(ctx, "reading password from helper: %s", helper)
		return pwutil.ReadPasswordFromHelper(folder, helper)
	}

	return pwd.PromptPassword()
}

type repoHandler func(ctx *cli.Context, rp *repo.Repository) error

// withRepo unlocks and opens the repository, runs `fn` and closes it again.
func withRepo(fn repoHandler) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		folder := guessRepoFolder(ctx)
		if !repo.IsInitialized(folder) {
			return ExitCode{
				BadArgs,
				fmt.Sprintf("`%s` is not a repository (did you run `skiff init`?)", folder),
			}
		}

		cfg, err := repo.OpenConfig(folder)
		if err != nil {
			return ExitCode{UnknownError, fmt.Sprintf("failed to open config: %v", err)}
		}

		password, err := readPassword(ctx, folder, cfg)
		if err != nil {
			return ExitCode{BadPassword, fmt.Sprintf("failed to read password: %v", err)}
		}

		logVerbose(ctx, "opening repository at %s", folder)

		rp, err := repo.Open(folder, password)
		if err == repo.ErrBadPassword {
			return ExitCode{BadPassword, "the password seems to be wrong"}
		}

		if err != nil {
			return ExitCode{UnknownError, fmt.Sprintf("failed to open repository: %v", err)}
		}

		defer util.Closer(rp)

		return fn(ctx, rp)
	}
}

type configHandler func(ctx *cli.Context, folder string, cfg *config.Config) error

// withConfig loads only the config. No password or state database is
// needed, so config commands still work when the repo refuses to open.
func withConfig(fn configHandler) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		folder := guessRepoFolder(ctx)
		cfg, err := repo.OpenConfig(folder)
		if err != nil {
			return ExitCode{BadArgs, fmt.Sprintf("failed to open config: %v", err)}
		}

		return fn(ctx, folder, cfg)
	}
}

type checkFunc func(ctx *cli.Context) int

func withArgCheck(checker checkFunc, handler cli.ActionFunc) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		if checker(ctx) != Success {
			os.Exit(BadArgs)
		}

		return handler(ctx)
	}
}

func needAtLeast(min int) checkFunc {
	return func(ctx *cli.Context) int {
		if ctx.NArg() < min {
			if min == 1 {
				log.Warningf("Need at least %d argument.", min)
			} else {
				log.Warningf("Need at least %d arguments.", min)
			}

			if err := cli.ShowCommandHelp(ctx, ctx.Command.Name); err != nil {
				log.Warningf("Failed to display --help: %v", err)
			}

			return BadArgs
		}

		return Success
	}
}
