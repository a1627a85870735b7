// Package ui provides colored terminal output for the command-line tool.
package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

const headerWidth = 60

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	successColor = color.New(color.FgGreen)
	infoColor    = color.New(color.FgBlue)
	warnColor    = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
)

// Header prints a banner line with the text centered
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	headerColor.Println(line)
	headerColor.Println(center(text, headerWidth))
	headerColor.Println(line)
}

// Step prints a numbered progress step
func Step(n, total int, text string) {
	infoColor.Printf("[%d/%d] ", n, total)
	fmt.Println(text)
}

// Success prints a success message
func Success(text string) {
	successColor.Printf("✓ %s\n", text)
}

// Info prints an informational message
func Info(text string) {
	infoColor.Printf("• %s\n", text)
}

// Warning prints a warning message
func Warning(text string) {
	warnColor.Printf("! %s\n", text)
}

// Error prints an error message
func Error(text string) {
	errorColor.Printf("✗ %s\n", text)
}

// BlueText prints plain blue text
func BlueText(text string) {
	infoColor.Println(text)
}

// YellowText prints plain yellow text
func YellowText(text string) {
	warnColor.Println(text)
}

// center pads text on the left so it sits in the middle of width. Text at
// or beyond width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	pad := (width - len(text)) / 2
	return strings.Repeat(" ", pad) + text
}
