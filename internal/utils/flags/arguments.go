package flags

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

const (
	missingArgumentsTemplateConstant    = "the following arguments are required: %s"
	unexpectedArgumentsTemplateConstant = "unexpected arguments: %s"
	argumentNameSeparatorConstant       = ", "
	argumentPlaceholderPrefixConstant   = "<"
	argumentPlaceholderSuffixConstant   = ">"
	argumentUsageSeparatorConstant      = " "
)

// PositionalArguments requires exactly the named positional arguments and reports missing ones by name.
func PositionalArguments(argumentNames ...string) cobra.PositionalArgs {
	return func(command *cobra.Command, arguments []string) error {
		if len(arguments) < len(argumentNames) {
			return fmt.Errorf(missingArgumentsTemplateConstant, strings.Join(argumentNames[len(arguments):], argumentNameSeparatorConstant))
		}
		if len(arguments) > len(argumentNames) {
			return fmt.Errorf(unexpectedArgumentsTemplateConstant, strings.Join(arguments[len(argumentNames):], argumentUsageSeparatorConstant))
		}
		return nil
	}
}

// ArgumentsUsage renders "<first> <second>" placeholders for a command Use line.
func ArgumentsUsage(commandName string, argumentNames ...string) string {
	usageParts := make([]string, 0, len(argumentNames)+1)
	usageParts = append(usageParts, commandName)
	for _, argumentName := range argumentNames {
		usageParts = append(usageParts, argumentPlaceholderPrefixConstant+argumentName+argumentPlaceholderSuffixConstant)
	}
	return strings.Join(usageParts, argumentUsageSeparatorConstant)
}
