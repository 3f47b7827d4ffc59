package dues

import (
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/types"
)

// ID is the identifier type of every record.
type ID = id.ID

// Money is re-exported from the types package.
type Money = types.Money

// Month is re-exported from the types package.
type Month = types.Month

var (
	EUR        = types.EUR
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMonth = types.ParseMonth
)
