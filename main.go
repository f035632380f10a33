package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/chaos-io/fitroom/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "Error:", err)
		exitCodeError := &cmd.ExitCodeError{}
		if errors.As(err, &exitCodeError) {
			os.Exit(exitCodeError.ExitCode())
		}
		os.Exit(cmd.ExitCodeUnknownError)
	}
}
