package cmd

import (
	"SynapseCode/backend/go/internal/models"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var createPublic bool

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "List and create workspaces",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the workspaces you are a member of",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workspaceClient()
		if err != nil {
			return err
		}
		var res struct {
			Workspaces []models.WorkspaceSummary `json:"workspaces"`
		}
		if err := c.do(http.MethodGet, "/api/v1/workspaces", nil, &res); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tVISIBILITY\tROLE")
		for _, ws := range res.Workspaces {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", ws.ID, ws.Name, ws.Visibility, ws.Role)
		}
		return w.Flush()
	},
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workspaceClient()
		if err != nil {
			return err
		}
		visibility := models.VisibilityPrivate
		if createPublic {
			visibility = models.VisibilityPublic
		}
		body := map[string]interface{}{
			"name":             args[0],
			"visibility":       visibility,
			"idempotencyToken": uuid.NewString(),
		}
		var ws models.Workspace
		if err := c.do(http.MethodPost, "/api/v1/workspaces", body, &ws); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created workspace %s (%s)\n", ws.Name, ws.ID)
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree [workspace-id]",
	Short: "Print the folder and file tree of a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := workspaceClient()
		if err != nil {
			return err
		}
		var res struct {
			Snapshot models.WorkspaceSnapshot `json:"snapshot"`
			Role     models.Role              `json:"role"`
		}
		if err := c.do(http.MethodGet, "/api/v1/workspaces/"+args[0], nil, &res); err != nil {
			return err
		}
		renderTree(cmd.OutOrStdout(), &res.Snapshot)
		return nil
	},
}

type treeNode struct {
	name     string
	id       string
	folder   bool
	children []*treeNode
}

// renderTree 打印文件树，文件夹在前，同级按名称排序，文件后附带 ID。
func renderTree(out io.Writer, snap *models.WorkspaceSnapshot) {
	root := &treeNode{}
	folders := make(map[string]*treeNode, len(snap.Folders))
	for _, f := range snap.Folders {
		folders[f.ID] = &treeNode{name: f.Name, id: f.ID, folder: true}
	}
	parentOf := func(id *string) *treeNode {
		if id != nil {
			if p, ok := folders[*id]; ok {
				return p
			}
		}
		return root
	}
	for _, f := range snap.Folders {
		p := parentOf(f.ParentID)
		p.children = append(p.children, folders[f.ID])
	}
	for _, f := range snap.Files {
		p := parentOf(f.FolderID)
		p.children = append(p.children, &treeNode{name: f.Name, id: f.ID})
	}

	if snap.Workspace != nil {
		fmt.Fprintf(out, "%s (%s)\n", snap.Workspace.Name, snap.Workspace.Visibility)
	}
	writeChildren(out, root, "")
}

func writeChildren(out io.Writer, n *treeNode, prefix string) {
	sort.Slice(n.children, func(i, j int) bool {
		a, b := n.children[i], n.children[j]
		if a.folder != b.folder {
			return a.folder
		}
		return strings.ToLower(a.name) < strings.ToLower(b.name)
	})
	for i, child := range n.children {
		branch, next := "├── ", "│   "
		if i == len(n.children)-1 {
			branch, next = "└── ", "    "
		}
		if child.folder {
			fmt.Fprintf(out, "%s%s%s/\n", prefix, branch, child.name)
			writeChildren(out, child, prefix+next)
			continue
		}
		fmt.Fprintf(out, "%s%s%s  [%s]\n", prefix, branch, child.name, child.id)
	}
}

func init() {
	workspaceCreateCmd.Flags().BoolVar(&createPublic, "public", false, "make the workspace readable by every signed-in user")
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceCreateCmd)
	rootCmd.AddCommand(treeCmd)
}
