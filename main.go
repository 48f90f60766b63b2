package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/illarion/keysafe/cmd"
	"github.com/illarion/keysafe/internal/config"
)

func main() {
	// Purge guarded memory on interrupt and on exit
	memguard.CatchInterrupt()
	defer memguard.Purge()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(ctx, os.Args[2:])
	case "ls":
		runLs(ctx, os.Args[2:])
	case "add":
		runAdd(ctx, os.Args[2:])
	case "update":
		runUpdate(ctx, os.Args[2:])
	case "rm":
		runRm(ctx, os.Args[2:])
	case "passwd":
		runPasswd(ctx, os.Args[2:])
	case "status":
		runStatus(ctx, os.Args[2:])
	case "compact":
		runCompact(ctx, os.Args[2:])
	case "keyring":
		runKeyring(ctx, os.Args[2:])
	case "signer":
		runSigner(ctx, os.Args[2:])
	case "shell":
		runShell(ctx, os.Args[2:])
	case "completion":
		runCompletion(ctx, os.Args[2:])
	case "help", "-h", "--help":
		if len(os.Args) <= 2 {
			printUsage()
			return
		}
		printCommandHelp(os.Args[2])
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig reads the config file and sets up logging
func loadConfig() *config.Config {
	path, err := config.DefaultPath()
	if err != nil {
		cmd.HandleError(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		cmd.HandleError(err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(cfg.Level())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Debug().Str("config", path).Str("backend", cfg.Storage.Backend).Str("db", cfg.Storage.Path).Msg("config loaded")

	return cfg
}

func parse(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func identityFlag(fs *flag.FlagSet) *string {
	return fs.String("identity", "", "Identity (wallet address) to use")
}

func runInit(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	identity := identityFlag(fs)
	parse(fs, args)

	cmd.Init(ctx, loadConfig(), *identity)
}

func runLs(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	identity := identityFlag(fs)
	show := fs.Bool("show", false, "Print entry secrets")
	parse(fs, args)

	cmd.Ls(ctx, loadConfig(), *identity, *show)
}

func runAdd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	identity := identityFlag(fs)
	var f cmd.EntryFields
	fs.StringVar(&f.Title, "title", "", "Entry title (required)")
	fs.StringVar(&f.Username, "username", "", "Entry username")
	fs.StringVar(&f.Website, "website", "", "Entry website")
	fs.StringVar(&f.Notes, "notes", "", "Entry notes")
	parse(fs, args)

	// Allow the title as a positional argument
	if f.Title == "" && fs.NArg() > 0 {
		f.Title = fs.Arg(0)
	}

	cmd.Add(ctx, loadConfig(), *identity, f)
}

func runUpdate(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	identity := identityFlag(fs)
	title := fs.String("title", "", "New title")
	username := fs.String("username", "", "New username")
	website := fs.String("website", "", "New website")
	notes := fs.String("notes", "", "New notes")
	secret := fs.Bool("secret", false, "Prompt for a new entry secret")
	dryRun := fs.Bool("dry-run", false, "Show changes without writing")
	parse(fs, args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: keysafe update [flags] <id>")
		os.Exit(1)
	}

	// Only flags given on the command line are changed, so "" can clear a field
	f := cmd.UpdateFields{Secret: *secret}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "title":
			f.Title = title
		case "username":
			f.Username = username
		case "website":
			f.Website = website
		case "notes":
			f.Notes = notes
		}
	})

	cmd.Update(ctx, loadConfig(), *identity, fs.Arg(0), f, *dryRun)
}

func runRm(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	identity := identityFlag(fs)
	parse(fs, args)

	cmd.Remove(ctx, loadConfig(), *identity, fs.Args())
}

func runPasswd(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("passwd", flag.ExitOnError)
	identity := identityFlag(fs)
	parse(fs, args)

	cmd.Passwd(ctx, loadConfig(), *identity)
}

func runStatus(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	parse(fs, args)

	cmd.Status(ctx, loadConfig())
}

func runCompact(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("compact", flag.ExitOnError)
	parse(fs, args)

	cmd.Compact(ctx, loadConfig())
}

func runKeyring(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: keysafe keyring <save|delete|status> [--identity <id>]")
		os.Exit(1)
	}
	fs := flag.NewFlagSet("keyring "+args[0], flag.ExitOnError)
	identity := identityFlag(fs)
	parse(fs, args[1:])

	cfg := loadConfig()
	switch args[0] {
	case "save":
		cmd.KeyringSave(ctx, cfg, *identity)
	case "delete":
		cmd.KeyringDelete(ctx, cfg, *identity)
	case "status":
		cmd.KeyringStatus(ctx, cfg, *identity)
	default:
		fmt.Fprintf(os.Stderr, "Unknown keyring command: %s\n", args[0])
		os.Exit(1)
	}
}

func runSigner(ctx context.Context, args []string) {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("signer "+sub, flag.ExitOnError)
	force := fs.Bool("force", false, "Reset without confirmation")
	parse(fs, args)

	cfg := loadConfig()
	switch sub {
	case "show":
		cmd.SignerShow(ctx, cfg)
	case "init":
		cmd.SignerInit(ctx, cfg)
	case "reset":
		cmd.SignerReset(ctx, cfg, *force)
	default:
		fmt.Fprintf(os.Stderr, "Unknown signer command: %s\n", sub)
		os.Exit(1)
	}
}

func runShell(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	identity := identityFlag(fs)
	parse(fs, args)

	cmd.Shell(ctx, loadConfig(), *identity)
}

func runCompletion(_ context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: keysafe completion <bash|zsh|fish>")
		os.Exit(1)
	}
	cmd.Completion(args[0])
}

func printUsage() {
	fmt.Println("keysafe - Credential vault bound to your wallet identity")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  keysafe <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init        Create the master secret for an identity")
	fmt.Println("  ls          List vault entries")
	fmt.Println("  add         Add an entry")
	fmt.Println("  update      Change an entry")
	fmt.Println("  rm          Remove entries")
	fmt.Println("  passwd      Change the master secret")
	fmt.Println("  status      Show identities and storage state")
	fmt.Println("  compact     Compact the database to reclaim disk space")
	fmt.Println("  keyring     Manage the master secret in the OS keyring")
	fmt.Println("  signer      Manage the local signer key")
	fmt.Println("  shell       Interactive session")
	fmt.Println("  completion  Generate shell completions")
	fmt.Println("  help        Show help for a command")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  keysafe init                          # Create signer and master secret")
	fmt.Println("  keysafe add --title GitHub --username bob")
	fmt.Println("  keysafe ls --show                     # Print entries with secrets")
	fmt.Println("  keysafe status                        # Check vault status")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  KEYSAFE_SECRET    Master secret (skips the prompt)")
	fmt.Println("  KEYSAFE_CONFIG    Config file path")
	fmt.Println("  KEYSAFE_DB        Database path")
	fmt.Println("  KEYSAFE_BACKEND   bolt or sqlite")
	fmt.Println("  KEYSAFE_IDENTITY  Default identity")
	fmt.Println()
	fmt.Println("Use 'keysafe help <command>' for more information about a command.")
}

func printCommandHelp(command string) {
	switch command {
	case "init":
		fmt.Println("keysafe init [--identity <id>]")
		fmt.Println()
		fmt.Println("Creates the master secret record for an identity.")
		fmt.Println("Without --identity the local signer's address is used; the signer")
		fmt.Println("key is created if it does not exist yet.")
		fmt.Println("With signature binding (the default) the record also depends on the")
		fmt.Println("signer's signature, so the secret alone cannot unlock the vault.")
		fmt.Println("The secret is not stored anywhere - you must remember it.")
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  keysafe init")
		fmt.Println("  keysafe init --identity 0xabc     # needs signer.binding: none")
	case "ls":
		fmt.Println("keysafe ls [--identity <id>] [--show]")
		fmt.Println()
		fmt.Println("Unlocks the vault and lists its entries in insertion order.")
		fmt.Println("Secrets are masked unless --show is given.")
	case "add":
		fmt.Println("keysafe add --title <title> [--username <u>] [--website <url>] [--notes <text>]")
		fmt.Println()
		fmt.Println("Adds an entry. The entry secret is prompted for and never read")
		fmt.Println("from the command line.")
		fmt.Println()
		fmt.Println("Example:")
		fmt.Println("  keysafe add --title GitHub --username bob --website github.com")
	case "update":
		fmt.Println("keysafe update [--title ...] [--username ...] [--website ...] [--notes ...] [--secret] [--dry-run] <id>")
		fmt.Println()
		fmt.Println("Changes the given fields of one entry. <id> may be a unique prefix.")
		fmt.Println("Changed fields are shown as a diff; --dry-run stops there.")
		fmt.Println("--secret prompts for a new entry secret.")
	case "rm":
		fmt.Println("keysafe rm <id> [id...]")
		fmt.Println()
		fmt.Println("Removes entries by id or unique id prefix.")
	case "passwd":
		fmt.Println("keysafe passwd [--identity <id>]")
		fmt.Println()
		fmt.Println("Changes the master secret.")
		fmt.Println("Requires both the current and new secrets.")
		fmt.Println("Re-encrypts every entry under the new secret.")
	case "status":
		fmt.Println("keysafe status")
		fmt.Println()
		fmt.Println("Shows the database, signer and every initialized identity with its")
		fmt.Println("entry count.")
		fmt.Println()
		fmt.Println("Does not require a secret.")
	case "compact":
		fmt.Println("keysafe compact")
		fmt.Println()
		fmt.Println("Compacts the database to reclaim unused disk space.")
		fmt.Println("This is automatically done after 'rm' and 'passwd' commands,")
		fmt.Println("but can be run manually if needed.")
		fmt.Println()
		fmt.Println("Does not require a secret.")
	case "keyring":
		fmt.Println("keysafe keyring <save|delete|status> [--identity <id>]")
		fmt.Println()
		fmt.Println("Stores the master secret in the OS keyring so commands do not prompt.")
		fmt.Println("With signature binding the signer is still required to unlock.")
	case "signer":
		fmt.Println("keysafe signer [show|init|reset [--force]]")
		fmt.Println()
		fmt.Println("Manages the local ed25519 signer kept in the OS keyring.")
		fmt.Println("Its address is the default identity. Resetting it makes")
		fmt.Println("identities bound to it impossible to unlock.")
	case "shell":
		fmt.Println("keysafe shell [--identity <id>]")
		fmt.Println()
		fmt.Println("Unlocks once and accepts commands until 'exit'.")
		fmt.Println("The session locks after inactivity, at its hard expiry, and when")
		fmt.Println("the signer stops reporting the session identity.")
	case "completion":
		fmt.Println("keysafe completion <bash|zsh|fish>")
		fmt.Println()
		fmt.Println("Outputs shell completion script for the specified shell.")
		fmt.Println()
		fmt.Println("Setup:")
		fmt.Println("  # Bash - add to ~/.bashrc")
		fmt.Println("  eval \"$(keysafe completion bash)\"")
		fmt.Println()
		fmt.Println("  # Zsh - add to ~/.zshrc")
		fmt.Println("  eval \"$(keysafe completion zsh)\"")
		fmt.Println()
		fmt.Println("  # Fish - add to ~/.config/fish/config.fish")
		fmt.Println("  keysafe completion fish | source")
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
	}
}
