// Package cli provides the atrium-admin command-line interface.
//
// # Overview
//
// This package implements the `atrium-admin` tool for operators to inspect
// and manage a workspace from the terminal: members, invitations, API keys
// and webhook destinations. Every command talks to the HTTP API with a
// bearer API key, so the key's capability scopes bound what each command
// may do.
//
// # Commands
//
// whoami: show the identity behind the key
//
//	atrium-admin whoami --server https://atrium.example.com
//
// members: list, change roles, remove
//
//	atrium-admin members set-role --id 42 --role admin
//
// invite: create and revoke invitations
//
//	atrium-admin invite create --email dev@example.com --role member
//
// apikeys: list, create, delete
//
//	atrium-admin apikeys create --name ci --scopes manage:webhooks
//
// The API key is read from --token or the ATRIUM_API_KEY environment
// variable.
package cli
