// Command hashpw prints a credential table entry for a handle.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/le-tueur/chatvc/internal/auth"
	"github.com/le-tueur/chatvc/internal/models"
	"github.com/le-tueur/chatvc/pkg/logger"
)

func main() {
	handle := flag.String("handle", "", "user handle")
	role := flag.String("role", string(models.RoleUser), "role: user, guest, admin or bot")
	password := flag.String("password", "", "plain text password")
	flag.Parse()

	if *handle == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !models.Role(*role).Valid() {
		logger.Fatal("Unknown role %q", *role)
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		logger.Fatal("%v", err)
	}
	out, err := json.MarshalIndent(auth.Credential{
		Handle:       *handle,
		Role:         models.Role(*role),
		PasswordHash: hash,
	}, "", "  ")
	if err != nil {
		logger.Fatal("%v", err)
	}
	fmt.Println(string(out))
}
