package cmd

import (
	"SynapseCode/backend/go/internal/models"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var runStdin string

var runCmd = &cobra.Command{
	Use:   "run [workspace-id] [file-id]",
	Short: "Run a file on the code execution service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workspaceClient()
		if err != nil {
			return err
		}
		var res models.ExecutionResult
		path := fmt.Sprintf("/api/v1/workspaces/%s/files/%s/run", args[0], args[1])
		if err := c.do(http.MethodPost, path, map[string]string{"stdin": runStdin}, &res); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "status: %s\n", res.Status.Description)
		if res.CompileOutput != "" {
			fmt.Fprintf(out, "--- compile output ---\n%s\n", res.CompileOutput)
		}
		if res.Stdout != "" {
			fmt.Fprintf(out, "--- stdout ---\n%s\n", res.Stdout)
		}
		if res.Stderr != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "--- stderr ---\n%s\n", res.Stderr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runStdin, "stdin", "", "standard input for the program")
	rootCmd.AddCommand(runCmd)
}
