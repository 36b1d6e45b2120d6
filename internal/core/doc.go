// Package core provides the business logic for reservation ingestion and the
// availability grid.
//
// This package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Pipeline
//
// Data flows strictly one way:
//
//	bytes -> RawRow -> Reservation -> Buckets -> Grid
//
//  1. [DecodeFile] decodes one exported CSV file, retrying as Shift_JIS when
//     the UTF-8 header does not carry the expected Japanese column names.
//  2. [ParseRecords] turns text into [RawRow] values with a quote-aware scanner.
//  3. [FromRows] converts rows into canonical [Reservation] values.
//  4. [Classify] deduplicates by [DedupKey] (last row wins) and splits the set
//     into Active / Cancelled / Changed buckets relative to one "today".
//  5. [BuildGrid] expands Active stays into a room x date occupancy grid with
//     turnover detection.
//
// Every stage is a pure function of its inputs. The only state lives in
// [Service], which holds the current reservation set and mirrors it to a
// shared [Store] with full-document overwrites.
//
// # Error Handling
//
// Parsing and classification problems are resolved locally (skip or recover
// and continue). Only [ErrEmptyDataset] and [ErrPersistence] reach callers.
// Technical errors are mapped to user-friendly messages using [MapError]:
//
//   - FILE001, FILE002, FILE004, FILE005: File errors (size, count, missing, empty dataset)
//   - VAL001-VAL004: Manual booking input errors
//   - STORE001-STORE002: Shared store errors
//   - ING001-ING002: Ingestion concurrency errors
package core
