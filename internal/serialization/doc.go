// Package serialization saves and loads posit model state in the .pnn format.
//
// The .pnn format stores every tensor at one posit configuration chosen by
// the caller (the file format G), independent of the precisions the model
// trains with:
//
//	Format Structure:
//	  [4 bytes: Magic "PSNN"]
//	  [4 bytes: Version (uint32 LE)]
//	  [4 bytes: Flags (uint32 LE)]
//	  [4 bytes: reserved]
//	  [8 bytes: Header Size (uint64 LE)]
//	  [8 bytes: Data Size (uint64 LE)]
//	  [32 bytes: SHA-256 of the data section]
//	  [Header: CBOR metadata {version, nbits, es, count, tensors, ...}]
//	  [padding to 64 bytes]
//	  [Data: one tensor record per entry, see tensor.Write]
//
// Loading with a file format other than the one recorded in the header is
// a hard error (*ConfigMismatchError), as is any missing, unexpected or
// reshaped tensor.
//
// Example usage:
//
//	// Save a model with 16-bit posits
//	err := serialization.SaveModel[posit.P16E1](path, model, serialization.Meta{ModelType: "mlp"})
//
//	// Load it back into a model of the same architecture
//	hdr, err := serialization.LoadModel[posit.P16E1](path, model, serialization.ReaderOptions{})
package serialization
