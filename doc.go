// Package taxlot is a tax-lot accounting engine for digital assets.
//
// It ingests heterogeneous transaction records (on-chain transfers, exchange
// trades, CSV exports), normalizes them into canonical Transactions, keeps a
// first-in first-out inventory of lots per asset and derives the tax
// consequence of every transaction in a national currency.
//
// The main pieces are:
//   - Normalizer: maps source records and vocabularies onto the closed set of
//     Classifications, rejecting malformed records one by one and skipping
//     records already imported.
//   - Resolver: daily prices in base fiat and the base to national currency
//     rate, with a permanent cache and coalesced lookups.
//   - Ledger: the FIFO queues. Consumption is atomic and reports the cost basis
//     with the trace of the lots it consumed.
//   - RateTable: the injected policy, a transfer tax on the disposal side value
//     and an income tax on rewards.
//   - Aggregator: month, quarter, year or overall summaries, flagging periods
//     that contain events which could not be computed.
//
// Engine ties them together behind entry points that always return a Result
// envelope. Transactions are the only source of truth, everything else is
// derived by replaying them.
package taxlot
