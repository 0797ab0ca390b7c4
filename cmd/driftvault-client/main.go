// cmd/driftvault-client/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/halcyon-systems/driftvault/internal/localstore"
	"github.com/halcyon-systems/driftvault/internal/swarm"
	"github.com/halcyon-systems/driftvault/internal/vault"
)

const usage = `Usage: driftvault-client <command> [args]

Commands:
  put <file>         upload a file (--visibility=public|private|password-protected,
                     --password=..., --mime=..., --linger to keep seeding)
  get <id>           download a file (--password=..., --out=path)
  rm <id>            drop one reference to a file
  ls                 list locally indexed files
  export-keys [path] write a key backup (password-protected keys excluded)
  import-keys <path> restore keys from a backup`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "put":
		cmdPut(os.Args[2:])
	case "get":
		cmdGet(os.Args[2:])
	case "rm":
		cmdRm(os.Args[2:])
	case "ls":
		cmdLs()
	case "export-keys":
		cmdExportKeys(os.Args[2:])
	case "import-keys":
		cmdImportKeys(os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		fmt.Println(usage)
		os.Exit(1)
	}
}

func driftvaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		fatalf("cannot determine home directory: %v", err)
	}
	dir := filepath.Join(home, ".driftvault")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fatalf("cannot create %s: %v", dir, err)
	}
	return dir
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// parseFlag returns the value of --name from args, or def when absent.
func parseFlag(args []string, name, def string) string {
	for i, arg := range args {
		if arg == "--"+name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--"+name+"=") {
			return strings.TrimPrefix(arg, "--"+name+"=")
		}
	}
	return def
}

func hasFlag(args []string, name string) bool {
	for _, arg := range args {
		if arg == "--"+name {
			return true
		}
	}
	return false
}

// positional returns the first argument that is not a flag or a flag value.
func positional(args []string) string {
	skip := false
	for _, arg := range args {
		if skip {
			skip = false
			continue
		}
		if strings.HasPrefix(arg, "--") {
			skip = !strings.Contains(arg, "=")
			continue
		}
		return arg
	}
	return ""
}

func openVault() (*vault.Vault, *localstore.DB, *swarm.Seeder) {
	db, err := localstore.NewDB(filepath.Join(driftvaultDir(), "local.db"))
	if err != nil {
		fatalf("opening local store: %v", err)
	}

	var pin *vault.PinClient
	if serverURL := os.Getenv("DRIFTVAULT_SERVER"); serverURL != "" {
		pin = vault.NewPinClient(strings.TrimRight(serverURL, "/"), 60*time.Second)
	}

	seeder := swarm.NewSeeder(nil)
	return vault.New(seeder, db, pin), db, seeder
}

func cmdPut(args []string) {
	path := positional(args)
	if path == "" {
		fatalf("usage: driftvault-client put <file> [--visibility=...] [--password=...]")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fatalf("reading %s: %v", path, err)
	}

	v, db, seeder := openVault()
	defer db.Close()

	res, err := v.Put(context.Background(), filepath.Base(path), data, vault.PutOptions{
		Visibility: parseFlag(args, "visibility", ""),
		Password:   parseFlag(args, "password", ""),
		MimeType:   parseFlag(args, "mime", ""),
	})
	if err != nil {
		fatalf("upload failed: %v", err)
	}

	fmt.Printf("id:     %s\n", res.StorageID)
	fmt.Printf("magnet: %s\n", res.MagnetURI)
	fmt.Printf("scope:  %s\n", res.Visibility)
	if res.Deduplicated {
		fmt.Printf("deduplicated, %d references\n", res.RefCount)
	}

	if hasFlag(args, "linger") {
		linger(seeder)
	}
}

// linger keeps the process alive seeding and announcing to the tracker, so
// peers can fetch directly before any server copy exists. Interrupt to stop.
func linger(seeder *swarm.Seeder) {
	trackerURL := os.Getenv("DRIFTVAULT_TRACKER")
	if trackerURL == "" {
		fatalf("--linger requires the DRIFTVAULT_TRACKER environment variable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nStopping seeder...")
		cancel()
	}()

	fmt.Printf("seeding %d file(s), press Ctrl-C to stop\n", len(seeder.Seeding()))
	swarm.NewAnnouncer(trackerURL, uuid.NewString(), seeder).Run(ctx)
}

func cmdGet(args []string) {
	id := positional(args)
	if id == "" {
		fatalf("usage: driftvault-client get <id> [--password=...] [--out=path]")
	}

	v, db, _ := openVault()
	defer db.Close()

	data, meta, err := v.Get(context.Background(), id, parseFlag(args, "password", ""))
	if err != nil {
		fatalf("download failed: %v", err)
	}

	out := parseFlag(args, "out", "")
	if out == "" {
		out = meta.Name
	}
	if out == "" {
		out = id
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		fatalf("writing %s: %v", out, err)
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), out)
}

func cmdRm(args []string) {
	id := positional(args)
	if id == "" {
		fatalf("usage: driftvault-client rm <id>")
	}

	v, db, _ := openVault()
	defer db.Close()

	count, err := v.Delete(context.Background(), id)
	if err != nil {
		fatalf("delete failed: %v", err)
	}
	if count > 0 {
		fmt.Printf("dropped one reference, %d remaining\n", count)
	} else {
		fmt.Println("removed")
	}
}

func cmdLs() {
	_, db, _ := openVault()
	defer db.Close()

	entries, err := db.ListEntries()
	if err != nil {
		fatalf("listing: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("no files indexed")
		return
	}
	for _, e := range entries {
		fmt.Printf("%s  %-18s  refs=%d  %d bytes\n", e.StorageID, e.Visibility, e.RefCount, e.Size)
	}
}

func cmdExportKeys(args []string) {
	out := positional(args)
	if out == "" {
		out = "driftvault-keys.json"
	}

	_, db, _ := openVault()
	defer db.Close()

	data, err := db.ExportKeys()
	if err != nil {
		fatalf("export failed: %v", err)
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		fatalf("writing %s: %v", out, err)
	}
	fmt.Printf("wrote key backup to %s\n", out)
}

func cmdImportKeys(args []string) {
	path := positional(args)
	if path == "" {
		fatalf("usage: driftvault-client import-keys <path>")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fatalf("reading %s: %v", path, err)
	}

	_, db, _ := openVault()
	defer db.Close()

	n, err := db.ImportKeys(data)
	if err != nil {
		fatalf("import failed: %v", err)
	}
	fmt.Printf("imported %d key(s)\n", n)
}
