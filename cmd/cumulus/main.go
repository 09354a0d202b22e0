package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"cumulus/internal/client"
)

const usage = `usage: cumulus <command> [arguments]

commands:
  login      <email>                 sign in and save the session token
  logout                             revoke the session
  ls         [folder-id]             list a folder (root when omitted)
  tree       <folder-id>             list a whole subtree
  mkdir      <name> [parent-id]      create a folder
  upload     <path> [parent-id]      upload a local file
  download   <file-id> <path>        download a file
  rename     <file|folder> <id> <name>
  mv         <file|folder> <id> [dest-folder-id]
  rm         <file|folder> <id>
  share      <folder-id>             share a folder, print the key
  unshare    <folder-id>             revoke a folder's share key
  open-share <key>                   list a shared folder by its key

The server address comes from CUMULUS_URL (default http://localhost:8080).`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	baseURL := os.Getenv("CUMULUS_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := client.New(baseURL, client.LoadToken())
	ctx := context.Background()

	cmd, args := os.Args[1], os.Args[2:]
	var err error
	switch cmd {
	case "login":
		err = runLogin(ctx, c, args)
	case "logout":
		err = runLogout(ctx, c)
	case "ls":
		err = runList(ctx, c, args)
	case "tree":
		err = runTree(ctx, c, args)
	case "mkdir":
		err = runMkdir(ctx, c, args)
	case "upload":
		err = runUpload(ctx, c, args)
	case "download":
		err = runDownload(ctx, c, args)
	case "rename":
		err = runRename(ctx, c, args)
	case "mv":
		err = runMove(ctx, c, args)
	case "rm":
		err = runRemove(ctx, c, args)
	case "share":
		err = runShare(ctx, c, args)
	case "unshare":
		err = runUnshare(ctx, c, args)
	case "open-share":
		err = runOpenShare(ctx, c, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runLogin(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	totpCode := fs.String("totp", "", "six digit code when two-factor is enabled")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: cumulus login <email>")
	}

	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	token, err := c.Login(ctx, fs.Arg(0), string(password), *totpCode)
	if err != nil {
		return err
	}
	if err := client.SaveToken(token); err != nil {
		return err
	}
	fmt.Println("Logged in.")
	return nil
}

func runLogout(ctx context.Context, c *client.Client) error {
	if err := c.Logout(ctx); err != nil {
		return err
	}
	if err := client.ClearToken(); err != nil {
		return err
	}
	fmt.Println("Logged out.")
	return nil
}

func runList(ctx context.Context, c *client.Client, args []string) error {
	parentID := ""
	if len(args) > 0 {
		parentID = args[0]
	}
	nodes, err := c.ListNodes(ctx, parentID)
	if err != nil {
		return err
	}
	printNodes(nodes, false)
	return nil
}

func runTree(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cumulus tree <folder-id>")
	}
	nodes, err := c.ListSubtree(ctx, args[0])
	if err != nil {
		return err
	}
	printNodes(nodes, true)
	return nil
}

func runMkdir(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: cumulus mkdir <name> [parent-id]")
	}
	parentID := ""
	if len(args) == 2 {
		parentID = args[1]
	}
	node, err := c.CreateFolder(ctx, parentID, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Created folder %s (%s)\n", node.Name, node.ID)
	return nil
}

func runUpload(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: cumulus upload <path> [parent-id]")
	}
	parentID := ""
	if len(args) == 2 {
		parentID = args[1]
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	node, err := c.Upload(ctx, parentID, args[0], f)
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded %s (%s, %s)\n", node.Name, node.ID, humanizeBytes(node.Size))
	return nil
}

func runDownload(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: cumulus download <file-id> <path>")
	}

	rc, err := c.Download(ctx, args[0])
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, rc)
	if err != nil {
		return err
	}
	fmt.Printf("Downloaded %s (%s)\n", args[1], humanizeBytes(n))
	return nil
}

func runRename(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 3 || (args[0] != "file" && args[0] != "folder") {
		return fmt.Errorf("usage: cumulus rename <file|folder> <id> <name>")
	}
	if err := c.Rename(ctx, args[0], args[1], args[2]); err != nil {
		return err
	}
	fmt.Println("Renamed.")
	return nil
}

func runMove(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 2 || len(args) > 3 || (args[0] != "file" && args[0] != "folder") {
		return fmt.Errorf("usage: cumulus mv <file|folder> <id> [dest-folder-id]")
	}
	destID := ""
	if len(args) == 3 {
		destID = args[2]
	}
	if err := c.Move(ctx, args[0], args[1], destID); err != nil {
		return err
	}
	fmt.Println("Moved.")
	return nil
}

func runRemove(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 2 || (args[0] != "file" && args[0] != "folder") {
		return fmt.Errorf("usage: cumulus rm <file|folder> <id>")
	}
	if err := c.Delete(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("Deleted.")
	return nil
}

func runShare(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cumulus share <folder-id>")
	}
	key, err := c.Share(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Share key (shown once): %s\n", key)
	return nil
}

func runUnshare(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cumulus unshare <folder-id>")
	}
	if err := c.Unshare(ctx, args[0]); err != nil {
		return err
	}
	fmt.Println("Unshared.")
	return nil
}

func runOpenShare(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cumulus open-share <key>")
	}
	view, err := c.ResolveShare(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Shared folder: %s (%s)\n", view.Folder.Name, humanizeBytes(view.Folder.Size))
	printNodes(view.Nodes, true)
	return nil
}

func printNodes(nodes []client.Node, withPath bool) {
	for _, n := range nodes {
		marker := " "
		if n.Kind == "folder" {
			marker = "d"
		}
		shared := " "
		if n.Shared {
			shared = "s"
		}
		name := n.Name
		if withPath && len(n.ParentNamePath) > 0 {
			name = strings.Join(n.ParentNamePath, "/") + "/" + n.Name
		}
		fmt.Printf("%s%s %-10s %-36s %s\n", marker, shared, humanizeBytes(n.Size), n.ID, name)
	}
}

// humanizeBytes formats a byte count into a human-readable string.
func humanizeBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
