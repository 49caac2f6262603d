// Package pwd implements terminal prompts for the repository password.
package pwd

import (
	"fmt"
	"os"

	"golang.org/x/crypto/ssh/terminal"
)

const maxTries = 3

// PromptPassword asks the user for an existing password.
// The input is not echoed back to the terminal.
func PromptPassword() (string, error) {
	fmt.Print("Password: ")
	password, err := terminal.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()

	if err != nil {
		return "", err
	}

	return string(password), nil
}

// PromptNewPassword asks the user for a new password of at least
// `minLen` characters. It has to be typed twice to rule out typos.
func PromptNewPassword(minLen int) (string, error) {
	for try := 0; try < maxTries; try++ {
		fmt.Print("New password: ")
		first, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()

		if err != nil {
			return "", err
		}

		if len(first) < minLen {
			fmt.Printf("Please use at least %d characters.\n", minLen)
			continue
		}

		fmt.Print("Retype password: ")
		second, err := terminal.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()

		if err != nil {
			return "", err
		}

		if string(first) != string(second) {
			fmt.Println("The passwords did not match. Please try again.")
			continue
		}

		return string(first), nil
	}

	return "", fmt.Errorf("maximum number of password tries exceeded")
}
