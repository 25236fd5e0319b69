package node

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// farmWalletPasswordEnv holds the farmer wallet's decryption password, for
// unattended daemon startups (systemd units, containers). When unset and
// stdin is a terminal, the password is prompted for interactively instead.
const farmWalletPasswordEnv = "PLOTCHAIN_FARM_PASSWORD"

// farmWalletPassword resolves the password unlocking the farming wallet's
// keystore entry: the environment variable if set, otherwise an
// interactive masked prompt.
func farmWalletPassword() ([]byte, error) {
	if pw := os.Getenv(farmWalletPasswordEnv); pw != "" {
		return []byte(pw), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is unset and stdin is not a terminal; cannot prompt for the farm wallet password", farmWalletPasswordEnv)
	}

	fmt.Fprint(os.Stderr, "farm wallet password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return password, nil
}

// formatRange renders a solution range as a human-readable magnitude
// (e.g. "281.47T"), the way a difficulty value reads in the logs.
func formatRange(r uint64) string {
	switch {
	case r >= 1_000_000_000_000:
		return fmt.Sprintf("%.2fT", float64(r)/1_000_000_000_000)
	case r >= 1_000_000_000:
		return fmt.Sprintf("%.2fG", float64(r)/1_000_000_000)
	case r >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(r)/1_000_000)
	case r >= 1_000:
		return fmt.Sprintf("%.2fK", float64(r)/1_000)
	default:
		return fmt.Sprintf("%d", r)
	}
}
