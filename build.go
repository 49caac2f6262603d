//go:build mage
// +build mage

package main

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blang/semver"
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Aliases = map[string]interface{}{
	"b": Build.Binary,
	"t": Build.Test,
	"l": Dev.Lint,
}

/////////////////////
// UTILITY HELPERS //
/////////////////////

func speak(format string, args ...interface{}) {
	if mg.Verbose() {
		fmt.Printf("-- "+format+"\n", args...)
	}
}

func readVersion() (*semver.Version, error) {
	data, err := ioutil.ReadFile(".version")
	if err != nil {
		return nil, fmt.Errorf("failed to read .version file: %v", err)
	}

	if bytes.HasPrefix(data, []byte{'v'}) {
		data = data[1:]
	}

	data = bytes.TrimSpace(data)
	vers, err := semver.Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse .version: %v", err)
	}

	return &vers, nil
}

func gitRev() string {
	rev, err := sh.Output("git", "rev-parse", "HEAD")
	if err != nil {
		speak("could not get git version: %v", err)
		return ""
	}

	return rev
}

func binaryOutput() string {
	path := os.Getenv("SKIFF_BINARY_PATH")
	if path != "" {
		speak("using binary path from SKIFF_BINARY_PATH: %s", path)
		return path
	}

	speak("using ${GOBIN}/skiff as binary output location")
	return filepath.Join(os.Getenv("GOBIN"), "skiff")
}

////////////////////
// ACTUAL TARGETS //
////////////////////

var Default = Build.Binary

type Build mg.Namespace

func (Build) Binary() error {
	version, err := readVersion()
	if err != nil {
		return err
	}

	releaseType := ""
	if len(version.Pre) > 0 {
		releaseType = version.Pre[0].String()
	}

	imp := "github.com/sahib/skiff/version"
	ldflags := []string{
		"-X", fmt.Sprintf("%s.Major=%d", imp, version.Major),
		"-X", fmt.Sprintf("%s.Minor=%d", imp, version.Minor),
		"-X", fmt.Sprintf("%s.Patch=%d", imp, version.Patch),
		"-X", fmt.Sprintf("%s.ReleaseType=%s", imp, releaseType),
		"-X", fmt.Sprintf("%s.BuildTime=%s", imp, time.Now().Format(time.RFC3339)),
		"-X", fmt.Sprintf("%s.GitRev=%s", imp, gitRev()),
	}

	if os.Getenv("SKIFF_SMALL_BINARY") != "" {
		ldflags = append(ldflags, "-s")
		ldflags = append(ldflags, "-w")
	}

	binPath := binaryOutput()
	minusld := strings.Join(ldflags, " ")
	return sh.Run("go", "build", "-ldflags", minusld, "-o", binPath, "./skiff")
}

func (Build) Test() error {
	return sh.RunV("go", "test", "./...")
}

// Development tools that are not relevant to the user's building process:
type Dev mg.Namespace

func (Dev) Lint() error {
	findCmd := "find -iname '*.go' -type f ! -iname 'build.go'"

	linters := []string{
		fmt.Sprintf("%s -exec gofmt -s -w {} \\;", findCmd),
		fmt.Sprintf("%s -exec go fix {} \\;", findCmd),
		fmt.Sprintf("%s -exec golint {} \\;", findCmd),
		fmt.Sprintf("%s -exec misspell {} \\;", findCmd),
		fmt.Sprintf("%s -exec gocyclo -over 20 {} \\; | sort -n", findCmd),
	}

	for _, linter := range linters {
		sh.RunV("sh", "-c", linter)
	}

	return nil
}
