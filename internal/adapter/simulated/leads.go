// Package simulated provides synthetic extraction and enrichment engines for
// demos and tests that run without a browser or network access.
package simulated

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/pkg/utils"
)

var (
	namePrefixes = []string{"Piekarnia", "Studio", "Pracownia", "Zakład", "Salon", "Centrum", "Sklep", "Biuro"}
	nameSuffixes = []string{"Sowa", "Pod Lipami", "Nova", "Kowalski", "Rynek", "Złoty Kłos", "Zielona", "Wisła"}
	streets      = []string{"ul. Rynek", "ul. Grunwaldzka", "ul. 3 Maja", "al. Piłsudskiego", "ul. Lwowska", "ul. Krakowska"}
)

// GenerateLeads returns n synthetic leads for query. The same query and
// offset always produce the same leads, and ids are unique per query.
func GenerateLeads(query string, offset, n int) []entity.Lead {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(query)))
	seed := h.Sum64()

	category, city := splitQuery(query)
	leads := make([]entity.Lead, 0, n)
	for i := offset; i < offset+n; i++ {
		r := rand.New(rand.NewPCG(seed, uint64(i)))
		name := fmt.Sprintf("%s %s %d", namePrefixes[r.IntN(len(namePrefixes))], nameSuffixes[r.IntN(len(nameSuffixes))], i+1)
		slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
		leads = append(leads, entity.Lead{
			ID:       utils.HashURL(fmt.Sprintf("sim://%d/%d", seed, i))[:16],
			Name:     name,
			Address:  fmt.Sprintf("%s %d, %s", streets[r.IntN(len(streets))], r.IntN(120)+1, city),
			Website:  "https://" + slug + ".example.pl",
			Category: category,
		})
	}
	return leads
}

// Contacts returns the synthetic contact details for a lead. Roughly one
// in four leads has no published email.
func Contacts(lead entity.Lead) (email, phone string) {
	h := fnv.New32a()
	h.Write([]byte(lead.ID))
	sum := h.Sum32()

	host := strings.TrimPrefix(lead.Website, "https://")
	if sum%4 != 0 && host != "" {
		email = "kontakt@" + host
	}
	phone = fmt.Sprintf("+48 %03d %03d %03d", 500+sum%300, (sum/300)%1000, (sum/7)%1000)
	return email, phone
}

func splitQuery(query string) (category, city string) {
	fields := strings.Fields(query)
	switch len(fields) {
	case 0:
		return "", "Polska"
	case 1:
		return fields[0], "Polska"
	default:
		return strings.Join(fields[:len(fields)-1], " "), fields[len(fields)-1]
	}
}

// Generator exposes GenerateLeads and Contacts as a repository.LeadGenerator.
type Generator struct{}

func (Generator) GenerateLeads(query string, offset, n int) []entity.Lead {
	return GenerateLeads(query, offset, n)
}

func (Generator) Contacts(lead entity.Lead) (email, phone string) {
	return Contacts(lead)
}
