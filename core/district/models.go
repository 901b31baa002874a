package district

import (
	"strings"

	"github.com/abiaedu/portal/core"
)

// Names are the Abia local government areas, in seeding order.
var Names = []string{
	"Aba North",
	"Aba South",
	"Arochukwu",
	"Bende",
	"Ikwuano",
	"Isiala Ngwa North",
	"Isiala Ngwa South",
	"Isuikwuato",
	"Obi Ngwa",
	"Ohafia",
	"Osisioma",
	"Ugwunagbo",
	"Ukwa East",
	"Ukwa West",
	"Umuahia North",
	"Umuahia South",
	"Umu Nneochi",
}

type District struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Normalize returns the lookup key for a district name: case-folded, single-spaced.
func Normalize(name string) string {
	return strings.ToLower(core.CollapseSpaces(name))
}
