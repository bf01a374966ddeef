package admin

import "strings"

// CommandArgs drops the global flags that precede the command. Every global
// flag takes a value, given either as "-f=value" or as the next argument.
func CommandArgs(args []string) []string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return args[i:]
		}
		if !strings.Contains(arg, "=") && i+1 < len(args) {
			i++
		}
	}
	return nil
}
