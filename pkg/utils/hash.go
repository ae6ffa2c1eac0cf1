package utils

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// OperatorPasswordCost is the bcrypt cost used for ADMIN_PASSWORD given in clear text.
const OperatorPasswordCost = 10

// HashOrRead returns password unchanged when it is already a bcrypt hash ($2a$, $2b$ or
// $2y$), otherwise its bcrypt hash.
func HashOrRead(password string) ([]byte, error) {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(password, prefix) {
			return []byte(password), nil
		}
	}
	return bcrypt.GenerateFromPassword([]byte(password), OperatorPasswordCost)
}
