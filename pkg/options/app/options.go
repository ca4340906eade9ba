// Package app defines the options contract used by the application
// bootstrap: option structs expose named flag sets and a Complete/Validate
// lifecycle.
package app

import "github.com/spf13/pflag"

// NamedFlagSets groups pflag sets by section name, preserving insertion
// order for help output.
type NamedFlagSets struct {
	// Order is the section order.
	Order []string

	// FlagSets maps section name to its flag set.
	FlagSets map[string]*pflag.FlagSet
}

// FlagSet returns the flag set for name, creating it on first use.
func (nfs *NamedFlagSets) FlagSet(name string) *pflag.FlagSet {
	if nfs.FlagSets == nil {
		nfs.FlagSets = map[string]*pflag.FlagSet{}
	}
	if _, ok := nfs.FlagSets[name]; !ok {
		nfs.FlagSets[name] = pflag.NewFlagSet(name, pflag.ExitOnError)
		nfs.Order = append(nfs.Order, name)
	}
	return nfs.FlagSets[name]
}

// CliOptions is the interface application option structs implement.
type CliOptions interface {
	// Flags returns the named flag sets.
	Flags() NamedFlagSets

	// Complete fills in defaults derived from other options.
	Complete() error

	// Validate checks the options.
	Validate() error
}
