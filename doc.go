// Package dues reconciles a club's fees and training attendance.
//
// Dues is a library, not a service. It keeps three kinds of obligations
// for every player and settles them with receipts:
//
//   - monthly dues for players billed by the month
//   - per-session charges for everyone else, reconciled against prepaid
//     session blocks as attendance is recorded
//   - event registration fees
//
// # Quick Start
//
//	s := memory.New() // or postgres.New(db), sqlite.New(db), mongo.New(db)
//	e := dues.New(s, dues.WithLogger(logger))
//	if err := e.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Stop()
//
//	admin := dues.Caller{ID: "staff-1", Admin: true}
//	created, err := e.EnsureDuesForMonthKey(ctx, admin, "2024-06")
//
// # Receipts
//
// Receipts are the source of truth. Their amounts never change once
// stored; a later receipt settles an earlier obligation by linking to it,
// and at most one receipt can settle any obligation. The paid flags on
// dues, registrations and attendance are a cache that RepairPaidFlags can
// rebuild at any time.
//
// Receipt numbers read RCPT-YYYYMMDD-000123: the issue date and the
// store-assigned sequence of the receipt.
//
// # Sessions
//
// RecordSession allocates each attendance unit of a per-session payer to
// the oldest prepaid slot. When none is left it raises a debt receipt for
// that single session. Balance reports:
//
//	owed = max(0, sessions_taken * price - prepaid_credit)
//
// # Callers
//
// Every operation takes a Caller. The default AdminOnly policy lets
// administrators do everything and players check themselves in; supply
// another Authorizer with WithAuthorizer.
package dues
