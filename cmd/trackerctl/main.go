// Package main is the command-line client for the initiative tracker API.
package main

func main() {
	Execute()
}
