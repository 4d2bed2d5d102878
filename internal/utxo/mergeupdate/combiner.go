package mergeupdate

import (
	"github.com/goodnatureofminers/chainstate-backend/internal/utxo/schema"
)

// Rule combines the stored value of a column with the staged one.
// existing is the latest stored version (zero values when the key is new), incoming the staged row.
type Rule func(existing, incoming schema.Expr) schema.Expr

// Combiner maps column names to rules. Columns without a rule take the staged value when the staging
// table has the column and keep the stored value otherwise.
type Combiner map[string]Rule
