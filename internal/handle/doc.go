// Package handle issues and recycles bounded resource handles.
//
// Two allocators share the [Allocator] interface:
//
//   - [Linear]: a bitmap over [min, max]; allocation scans for the first clear
//     bit starting at a remembered cursor.
//   - [Buffered]: wraps a Linear allocator with a small stack of pre-reserved
//     handles so that steady request rates pay the scan cost in batches.
//
// Handles held in the Buffered ready stack are reserved in the bitmap but not
// issued; IsUsed reports false for them and releasing one is a no-op.
//
// Allocators are not safe for concurrent use.
package handle
