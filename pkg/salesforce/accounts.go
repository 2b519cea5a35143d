package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// ExternalIDField is the Account text field holding the pipeline contractor id.
const ExternalIDField = "Contractor_ID__c"

// AccountRef is the part of an Account needed to match it to a contractor.
type AccountRef struct {
	ID         string `json:"Id" salesforce:"Id"`
	Name       string `json:"Name" salesforce:"Name"`
	ExternalID string `json:"Contractor_ID__c" salesforce:"Contractor_ID__c"`
}

// AccountUpdate holds an account ID and the fields to set.
type AccountUpdate struct {
	ID     string
	Fields map[string]any
}

// FindAccountsByExternalID maps external ids to Account ids for the ids that
// already exist. Lookups are chunked to keep SOQL under the URI limit.
func FindAccountsByExternalID(ctx context.Context, c Client, externalIDs []string) (map[string]string, error) {
	found := make(map[string]string, len(externalIDs))
	for start := 0; start < len(externalIDs); start += maxBatchSize {
		end := min(start+maxBatchSize, len(externalIDs))
		quoted := make([]string, 0, end-start)
		for _, id := range externalIDs[start:end] {
			quoted = append(quoted, "'"+escapeSoql(id)+"'")
		}
		soql := fmt.Sprintf("SELECT Id, Name, %s FROM Account WHERE %s IN (%s)",
			ExternalIDField, ExternalIDField, strings.Join(quoted, ", "))

		var refs []AccountRef
		if err := c.Query(ctx, soql, &refs); err != nil {
			return nil, eris.Wrapf(err, "sf: find accounts batch %d-%d", start, end)
		}
		for _, r := range refs {
			found[r.ExternalID] = r.ID
		}
	}
	return found, nil
}

// BulkInsertAccounts creates Accounts in batches of 200. Every record needs
// a Name.
func BulkInsertAccounts(ctx context.Context, c Client, records []map[string]any) ([]CollectionResult, error) {
	for i, r := range records {
		if name, _ := r["Name"].(string); name == "" {
			return nil, eris.Errorf("sf: account %d has no Name", i)
		}
	}
	var all []CollectionResult
	for start := 0; start < len(records); start += maxBatchSize {
		end := min(start+maxBatchSize, len(records))
		results, err := c.InsertCollection(ctx, "Account", records[start:end])
		if err != nil {
			return all, eris.Wrapf(err, "sf: bulk insert accounts batch %d-%d", start, end)
		}
		all = append(all, results...)
	}
	return all, nil
}

// BulkUpdateAccounts updates Accounts in batches of 200.
func BulkUpdateAccounts(ctx context.Context, c Client, updates []AccountUpdate) ([]CollectionResult, error) {
	var all []CollectionResult
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))
		records := make([]CollectionRecord, 0, end-start)
		for _, u := range updates[start:end] {
			records = append(records, CollectionRecord(u))
		}
		results, err := c.UpdateCollection(ctx, "Account", records)
		if err != nil {
			return all, eris.Wrapf(err, "sf: bulk update accounts batch %d-%d", start, end)
		}
		all = append(all, results...)
	}
	return all, nil
}

// escapeSoql escapes single quotes in SOQL string literals.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
