package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/sahib/skiff/version"

	formatter "github.com/sahib/skiff/util/log"
)

func init() {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	log.SetFormatter(&formatter.FancyLogFormatter{
		UseColors: true,
	})
}

func formatGroup(category string) string {
	return strings.ToUpper(category) + " COMMANDS"
}

// Run parses the commandline and executes the selected command.
// The returned integer is the exit code of the program.
func Run(args []string) int {
	app := cli.NewApp()
	app.Name = "skiff"
	app.Usage = "Incremental block level backups of single files"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf(
		"%s [buildtime: %s]",
		version.String(),
		version.BuildTime,
	)
	app.CommandNotFound = commandNotFound

	// Groups:
	repoGroup := formatGroup("repository")
	bakGroup := formatGroup("backup")
	miscGroup := formatGroup("misc")

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "repo,r",
			Usage:  "Path of the repository",
			Value:  "",
			EnvVar: "SKIFF_PATH",
		},
		cli.StringFlag{
			Name:   "password,p",
			Usage:  "Supply the repository password",
			Value:  "",
			EnvVar: "SKIFF_PASSWORD",
		},
		cli.BoolFlag{
			Name:  "verbose,V",
			Usage: "Show debug output",
		},
		cli.BoolFlag{
			Name:  "no-color",
			Usage: "Disable colored output",
		},
	}

	app.Before = func(ctx *cli.Context) error {
		if ctx.Bool("verbose") {
			log.SetLevel(log.DebugLevel)
		}

		if ctx.Bool("no-color") {
			color.NoColor = true
			log.SetFormatter(&formatter.FancyLogFormatter{
				UseColors: false,
			})
		}

		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:        "init",
			Category:    repoGroup,
			Usage:       "Initialize an empty repository",
			ArgsUsage:   "",
			Description: "Creates and unlocks a new repository in the folder given by --repo\n   (defaults to ~/.skiff). Settings may be adjusted here or later on\n   via `skiff config set`.",
			Action:      handleInit,
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:  "block-size,b",
					Value: 0,
					Usage: "Block size in bytes (default: 16K)",
				},
				cli.StringFlag{
					Name:  "cipher",
					Value: "",
					Usage: "Cipher for bundle data (none|chacha20|aes256gcm)",
				},
				cli.StringFlag{
					Name:  "compress",
					Value: "",
					Usage: "Compression for bundle data (none|snappy|lz4|zstd)",
				},
				cli.StringFlag{
					Name:  "checksum",
					Value: "",
					Usage: "Checksum for change detection (xxhash64|blake2b256|sha3-256)",
				},
			},
		},
		{
			Name:        "backup",
			Category:    bakGroup,
			Usage:       "Store a new generation of a file",
			ArgsUsage:   "<file>",
			Description: "Reads <file> and stores the blocks that changed since the last\n   generation. The first backup of a file stores all of its blocks.",
			Action:      withArgCheck(needAtLeast(1), withRepo(handleBackup)),
		},
		{
			Name:        "restore",
			Category:    bakGroup,
			Usage:       "Rebuild a file from its backups",
			ArgsUsage:   "<file> [<destination>]",
			Description: "Rebuilds <file> as of a certain generation (latest by default)\n   and writes the result to <destination> (defaults to <file>).",
			Action:      withArgCheck(needAtLeast(1), withRepo(handleRestore)),
			Flags: []cli.Flag{
				cli.Uint64Flag{
					Name:  "gen,g",
					Usage: "Generation to restore (default: latest)",
				},
			},
		},
		{
			Name:        "diff",
			Category:    bakGroup,
			Usage:       "Show what restore would fetch",
			ArgsUsage:   "<file>",
			Description: "Shows the reads needed to rebuild the latest generation of <file>\n   from its current on-disk state. No data is modified.",
			Action:      withArgCheck(needAtLeast(1), withRepo(handleDiff)),
		},
		{
			Name:        "gens",
			Aliases:     []string{"history"},
			Category:    bakGroup,
			Usage:       "List all generations of a file",
			ArgsUsage:   "<file>",
			Description: "Lists all stored generations of <file>, newest last.",
			Action:      withArgCheck(needAtLeast(1), withRepo(handleGens)),
		},
		{
			Name:     "config",
			Category: miscGroup,
			Usage:    "View and modify repository settings",
			Action:   withConfig(handleConfigList),
			Subcommands: []cli.Command{
				{
					Name:   "list",
					Usage:  "Show all config keys and values",
					Action: withConfig(handleConfigList),
				},
				{
					Name:      "get",
					Usage:     "Print the value of a config key",
					ArgsUsage: "<key>",
					Action:    withArgCheck(needAtLeast(1), withConfig(handleConfigGet)),
				},
				{
					Name:      "set",
					Usage:     "Change the value of a config key",
					ArgsUsage: "<key> <value>",
					Action:    withArgCheck(needAtLeast(2), withConfig(handleConfigSet)),
				},
				{
					Name:      "doc",
					Usage:     "Show the documentation of a config key",
					ArgsUsage: "<key>",
					Action:    withArgCheck(needAtLeast(1), withConfig(handleConfigDoc)),
				},
			},
		},
	}

	if err := app.Run(args); err != nil {
		if exitCode, ok := err.(ExitCode); ok {
			log.Error(exitCode.Message)
			return exitCode.Code
		}

		log.Error(err)
		return UnknownError
	}

	return Success
}
