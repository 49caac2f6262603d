package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	humanize "github.com/dustin/go-humanize"
	"github.com/fatih/color"
	e "github.com/pkg/errors"
	"github.com/sahib/config"
	"github.com/urfave/cli"

	"github.com/sahib/skiff/bakfs"
	"github.com/sahib/skiff/cmd/pwd"
	"github.com/sahib/skiff/repo"
)

func handleInit(ctx *cli.Context) error {
	folder := guessRepoFolder(ctx)

	password := ctx.GlobalString("password")
	if password == "" && ctx.String("cipher") != "none" {
		var err error
		password, err = pwd.PromptNewPassword(6)
		if err != nil {
			return ExitCode{BadPassword, fmt.Sprintf("failed to read password: %v", err)}
		}
	}

	if err := repo.Init(folder, password); err != nil {
		return ExitCode{UnknownError, fmt.Sprintf("init failed: %v", err)}
	}

	// Settings passed on the commandline go straight to the fresh config:
	overrides := map[string]string{
		"data.cipher":   ctx.String("cipher"),
		"data.compress": ctx.String("compress"),
		"data.checksum": ctx.String("checksum"),
	}

	cfg, err := repo.OpenConfig(folder)
	if err != nil {
		return ExitCode{UnknownError, fmt.Sprintf("init failed: %v", err)}
	}

	dirty := false
	for key, val := range overrides {
		if val == "" {
			continue
		}

		if err := cfg.SetString(key, val); err != nil {
			return ExitCode{BadArgs, fmt.Sprintf("%s: %v", key, err)}
		}

		dirty = true
	}

	if blockSize := ctx.Int64("block-size"); blockSize > 0 {
		if err := cfg.SetInt("fs.block_size", blockSize); err != nil {
			return ExitCode{BadArgs, fmt.Sprintf("fs.block_size: %v", err)}
		}

		dirty = true
	}

	if dirty {
		if err := repo.SaveConfig(folder, cfg); err != nil {
			return ExitCode{UnknownError, fmt.Sprintf("failed to save config: %v", err)}
		}
	}

	fmt.Printf("Initialized empty repository at %s\n", color.GreenString(folder))
	return nil
}

func handleBackup(ctx *cli.Context, rp *repo.Repository) error {
	path := mustAbsPath(ctx.Args().First())

	meta, err := rp.FS.Backup(path)
	switch {
	case err == bakfs.ErrNoChanges:
		fmt.Printf("%s is unchanged; nothing to do.\n", color.GreenString(path))
		return nil
	case e.Cause(err) == bakfs.ErrSettingsChanged:
		return ExitCode{BadArgs, fmt.Sprintf("backup: %v", err)}
	case err != nil:
		return ExitCode{UnknownError, fmt.Sprintf("backup: %v", err)}
	}

	fmt.Printf(
		"Created generation %s of %s (%s)\n",
		color.YellowString("%d", meta.Gen),
		color.GreenString(path),
		humanize.Bytes(meta.FileSize),
	)
	return nil
}

// pickGeneration returns the generation from --gen, or the latest one.
func pickGeneration(ctx *cli.Context, rp *repo.Repository, path string) (uint64, error) {
	if ctx.IsSet("gen") {
		return ctx.Uint64("gen"), nil
	}

	metas, err := rp.FS.Generations(path)
	if err == bakfs.ErrNoSuchFile {
		return 0, ExitCode{BadArgs, fmt.Sprintf("no backups of %s", path)}
	}

	if err != nil {
		return 0, ExitCode{UnknownError, fmt.Sprintf("generations: %v", err)}
	}

	return metas[len(metas)-1].Gen, nil
}

func handleRestore(ctx *cli.Context, rp *repo.Repository) error {
	src := mustAbsPath(ctx.Args().First())

	dst := src
	if ctx.NArg() > 1 {
		dst = mustAbsPath(ctx.Args().Get(1))
	}

	gen, err := pickGeneration(ctx, rp, src)
	if err != nil {
		return err
	}

	if err := rp.FS.Restore(src, gen, dst); err != nil {
		if e.Cause(err) == bakfs.ErrNoSuchGeneration {
			return ExitCode{BadArgs, fmt.Sprintf("restore: %v", err)}
		}

		return ExitCode{UnknownError, fmt.Sprintf("restore: %v", err)}
	}

	fmt.Printf(
		"Restored generation %s of %s to %s\n",
		color.YellowString("%d", gen),
		color.GreenString(src),
		color.GreenString(dst),
	)
	return nil
}

func handleDiff(ctx *cli.Context, rp *repo.Repository) error {
	path := mustAbsPath(ctx.Args().First())

	d, meta, err := rp.FS.Diff(path)
	if err == bakfs.ErrNoSuchFile {
		return ExitCode{BadArgs, fmt.Sprintf("no backups of %s", path)}
	}

	if err != nil {
		return ExitCode{UnknownError, fmt.Sprintf("diff: %v", err)}
	}

	if d.BlockCount() == 0 {
		fmt.Printf(
			"%s matches generation %s (created %s)\n",
			color.GreenString(path),
			color.YellowString("%d", meta.Gen),
			humanize.Time(meta.CreatedAt),
		)
		return nil
	}

	fmt.Printf(
		"%s blocks in %s reads to rebuild generation %s of %s (created %s):\n",
		color.YellowString("%d", d.BlockCount()),
		color.YellowString("%d", len(d.Reads)),
		color.YellowString("%d", meta.Gen),
		color.GreenString(path),
		humanize.Time(meta.CreatedAt),
	)

	tabW := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tabW, "GEN\tBUNDLE\tOFFSET\tSIZE\tBLOCKS\t\n")

	for idx := range d.Reads {
		rd := &d.Reads[idx]

		blocks := 0
		for _, sb := range rd.SuperBlocks {
			blocks += len(sb.Blocks)
		}

		fmt.Fprintf(
			tabW,
			"%d\t%016x\t%d\t%s\t%d\t\n",
			rd.Reference,
			rd.Bundle,
			rd.Offset,
			humanize.Bytes(rd.Size),
			blocks,
		)
	}

	return tabW.Flush()
}

func handleGens(ctx *cli.Context, rp *repo.Repository) error {
	path := mustAbsPath(ctx.Args().First())

	metas, err := rp.FS.Generations(path)
	if err == bakfs.ErrNoSuchFile {
		return ExitCode{BadArgs, fmt.Sprintf("no backups of %s", path)}
	}

	if err != nil {
		return ExitCode{UnknownError, fmt.Sprintf("generations: %v", err)}
	}

	fmt.Printf("Generations of %s:\n", color.GreenString(path))

	tabW := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tabW, "GEN\tSIZE\tBLOCK SIZE\tCIPHER\tZIP\tCREATED\t\n")

	for _, meta := range metas {
		fmt.Fprintf(
			tabW,
			"%d\t%s\t%s\t%s\t%s\t%s\t\n",
			meta.Gen,
			humanize.Bytes(meta.FileSize),
			humanize.Bytes(meta.BlockSize),
			meta.Cipher,
			meta.Zip,
			humanize.Time(meta.CreatedAt),
		)
	}

	return tabW.Flush()
}

func handleConfigList(ctx *cli.Context, folder string, cfg *config.Config) error {
	for _, key := range cfg.Keys() {
		fmt.Printf("%s: %v\n", color.GreenString(key), cfg.Get(key))
	}

	return nil
}

func handleConfigGet(ctx *cli.Context, folder string, cfg *config.Config) error {
	key := ctx.Args().First()
	if !cfg.IsValidKey(key) {
		return ExitCode{BadArgs, fmt.Sprintf("no such config key: %s", key)}
	}

	fmt.Printf("%v\n", cfg.Get(key))
	return nil
}

func handleConfigSet(ctx *cli.Context, folder string, cfg *config.Config) error {
	key := ctx.Args().Get(0)
	if !cfg.IsValidKey(key) {
		return ExitCode{BadArgs, fmt.Sprintf("no such config key: %s", key)}
	}

	val, err := cfg.Cast(key, ctx.Args().Get(1))
	if err != nil {
		return ExitCode{BadArgs, fmt.Sprintf("cannot cast value: %v", err)}
	}

	if err := cfg.Set(key, val); err != nil {
		return ExitCode{BadArgs, fmt.Sprintf("config set: %v", err)}
	}

	if err := repo.SaveConfig(folder, cfg); err != nil {
		return ExitCode{UnknownError, fmt.Sprintf("failed to save config: %v", err)}
	}

	return nil
}

func handleConfigDoc(ctx *cli.Context, folder string, cfg *config.Config) error {
	key := ctx.Args().First()
	if !cfg.IsValidKey(key) {
		return ExitCode{BadArgs, fmt.Sprintf("no such config key: %s", key)}
	}

	printConfigDocEntry(cfg, key)
	return nil
}

func printConfigDocEntry(cfg *config.Config, key string) {
	entry := cfg.GetDefault(key)

	val := fmt.Sprintf("%v", cfg.Get(key))
	if val == "" {
		val = color.YellowString("(empty)")
	}

	if cfg.IsDefault(key) {
		val += " " + color.CyanString("(default)")
	}

	fmt.Printf("%s: %v\n", color.GreenString(key), val)
	fmt.Printf("  Default:       %v\n", entry.Default)
	fmt.Printf("  Documentation: %v\n", entry.Docs)
	fmt.Printf("  Needs restart: %v\n", yesify(entry.NeedsRestart))
}
