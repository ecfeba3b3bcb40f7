package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [workspace-id]",
	Short: "Stream live changes and presence of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := loadToken()
		if err != nil {
			return err
		}
		u, err := url.Parse(serverURL)
		if err != nil {
			return err
		}
		u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
		u.Path = "/ws/workspaces/" + args[0]
		u.RawQuery = url.Values{"token": {token}}.Encode()

		c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		defer c.Close()
		fmt.Fprintln(cmd.ErrOrStderr(), "WebSocket connected. Waiting for changes...")

		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, message, "", "  "); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), string(message))
				continue
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
