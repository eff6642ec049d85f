package commands

import (
	"fmt"
	"netbank/pkg/netbank"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

const minimumSimilarity = 0.8

func sortedIds(accounts map[string]netbank.Account) []string {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// findAccount resolves what was typed on the command line into an account: the
// account number, the account number ignoring spaces or the closest display name.
func findAccount(accounts map[string]netbank.Account, query string) (netbank.Account, error) {
	account, ok := accounts[query]
	if ok {
		return account, nil
	}

	ids := sortedIds(accounts)
	compact := strings.ReplaceAll(query, " ", "")
	for _, id := range ids {
		if strings.ReplaceAll(id, " ", "") == compact {
			return accounts[id], nil
		}
	}

	var best netbank.Account
	mostSimilarity := 0.0
	for _, id := range ids {
		similarity := matchr.JaroWinkler(
			strings.ToLower(query),
			strings.ToLower(accounts[id].DisplayName),
			false,
		)
		if similarity > mostSimilarity {
			mostSimilarity = similarity
			best = accounts[id]
		}
	}
	if mostSimilarity < minimumSimilarity {
		return netbank.Account{}, fmt.Errorf("no account matches %q", query)
	}
	return best, nil
}
