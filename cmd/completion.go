package cmd

import (
	"fmt"
	"os"
)

// Completion outputs shell completion scripts
func Completion(shell string) {
	switch shell {
	case "bash":
		fmt.Print(bashCompletion)
	case "zsh":
		fmt.Print(zshCompletion)
	case "fish":
		fmt.Print(fishCompletion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown shell: %s\nSupported: bash, zsh, fish\n", shell)
		os.Exit(1)
	}
}

const bashCompletion = `_keysafe() {
    local cur prev words cword
    _init_completion || return

    local commands="init ls add update rm passwd status compact keyring signer shell help completion"

    if [[ $cword -eq 1 ]]; then
        COMPREPLY=($(compgen -W "$commands" -- "$cur"))
        return
    fi

    local cmd="${words[1]}"
    case "$cmd" in
        ls)
            COMPREPLY=($(compgen -W "--identity --show" -- "$cur"))
            ;;
        add)
            COMPREPLY=($(compgen -W "--identity --title --username --website --notes" -- "$cur"))
            ;;
        update)
            COMPREPLY=($(compgen -W "--identity --title --username --website --notes --secret --dry-run" -- "$cur"))
            ;;
        init|rm|passwd|shell)
            COMPREPLY=($(compgen -W "--identity" -- "$cur"))
            ;;
        keyring)
            COMPREPLY=($(compgen -W "save delete status" -- "$cur"))
            ;;
        signer)
            COMPREPLY=($(compgen -W "show init reset" -- "$cur"))
            ;;
        help)
            COMPREPLY=($(compgen -W "$commands" -- "$cur"))
            ;;
        completion)
            COMPREPLY=($(compgen -W "bash zsh fish" -- "$cur"))
            ;;
    esac
}

complete -F _keysafe keysafe
`

const zshCompletion = `#compdef keysafe

_keysafe() {
    local -a commands
    commands=(
        'init:Create the master secret for an identity'
        'ls:List vault entries'
        'add:Add an entry'
        'update:Change an entry'
        'rm:Remove entries'
        'passwd:Change the master secret'
        'status:Show identities and session state'
        'compact:Compact the database to reclaim disk space'
        'keyring:Manage the master secret in the OS keyring'
        'signer:Manage the local signer key'
        'shell:Interactive session'
        'help:Show help for a command'
        'completion:Generate shell completions'
    )

    _arguments -C \
        '1: :->command' \
        '*: :->args'

    case "$state" in
        command)
            _describe -t commands 'keysafe commands' commands
            ;;
        args)
            case "${words[2]}" in
                ls)
                    _arguments \
                        '--identity[Identity to use]:identity:' \
                        '--show[Print entry secrets]'
                    ;;
                add)
                    _arguments \
                        '--identity[Identity to use]:identity:' \
                        '--title[Entry title]:title:' \
                        '--username[Entry username]:username:' \
                        '--website[Entry website]:website:' \
                        '--notes[Entry notes]:notes:'
                    ;;
                update)
                    _arguments \
                        '--identity[Identity to use]:identity:' \
                        '--title[New title]:title:' \
                        '--username[New username]:username:' \
                        '--website[New website]:website:' \
                        '--notes[New notes]:notes:' \
                        '--secret[Prompt for a new entry secret]' \
                        '--dry-run[Show changes without writing]'
                    ;;
                init|rm|passwd|shell)
                    _arguments '--identity[Identity to use]:identity:'
                    ;;
                keyring)
                    _values 'subcommand' save delete status
                    ;;
                signer)
                    _values 'subcommand' show init reset
                    ;;
                help)
                    _describe -t commands 'keysafe commands' commands
                    ;;
                completion)
                    _values 'shell' bash zsh fish
                    ;;
            esac
            ;;
    esac
}

_keysafe "$@"
`

const fishCompletion = `# keysafe fish completions

set -l commands init ls add update rm passwd status compact keyring signer shell help completion

complete -c keysafe -f

# Commands
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a init -d 'Create the master secret'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a ls -d 'List entries'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a add -d 'Add an entry'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a update -d 'Change an entry'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a rm -d 'Remove entries'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a passwd -d 'Change the master secret'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a status -d 'Show status'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a compact -d 'Compact database'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a keyring -d 'Manage master secret in OS keyring'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a signer -d 'Manage the local signer'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a shell -d 'Interactive session'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a help -d 'Show help'
complete -c keysafe -n "not __fish_seen_subcommand_from $commands" -a completion -d 'Generate completions'

# identity flag
complete -c keysafe -n "__fish_seen_subcommand_from init ls add update rm passwd shell" -l identity -r -d 'Identity to use'

# ls flags
complete -c keysafe -n "__fish_seen_subcommand_from ls" -l show -d 'Print entry secrets'

# add and update flags
complete -c keysafe -n "__fish_seen_subcommand_from add update" -l title -r -d 'Entry title'
complete -c keysafe -n "__fish_seen_subcommand_from add update" -l username -r -d 'Entry username'
complete -c keysafe -n "__fish_seen_subcommand_from add update" -l website -r -d 'Entry website'
complete -c keysafe -n "__fish_seen_subcommand_from add update" -l notes -r -d 'Entry notes'
complete -c keysafe -n "__fish_seen_subcommand_from update" -l secret -d 'Prompt for a new entry secret'
complete -c keysafe -n "__fish_seen_subcommand_from update" -l dry-run -d 'Show changes without writing'

# keyring subcommands
complete -c keysafe -n "__fish_seen_subcommand_from keyring" -a "save delete status"

# signer subcommands
complete -c keysafe -n "__fish_seen_subcommand_from signer" -a "show init reset"

# help completions
complete -c keysafe -n "__fish_seen_subcommand_from help" -a "$commands"

# completion completions
complete -c keysafe -n "__fish_seen_subcommand_from completion" -a "bash zsh fish"
`
