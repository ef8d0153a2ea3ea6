package main

import (
	"fmt"

	"github.com/fatih/color"
)

// palette styles session output.
type palette struct {
	status func(a ...any) string
	alert  func(a ...any) string
	sender func(a ...any) string
}

var plainPalette = palette{status: fmt.Sprint, alert: fmt.Sprint, sender: fmt.Sprint}

func colorPalette() palette {
	return palette{
		status: color.New(color.FgCyan).SprintFunc(),
		alert:  color.New(color.FgRed, color.Bold).SprintFunc(),
		sender: color.New(color.Bold).SprintFunc(),
	}
}

// configureColor enables colors when out is an interactive terminal and
// NO_COLOR is unset.
func configureColor(interactive bool) palette {
	if !interactive || color.NoColor {
		return plainPalette
	}
	return colorPalette()
}
