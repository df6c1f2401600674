// Package serialization persists checkpoints.
//
// Every blob is self-describing:
//
//	offset  size  field
//	0x00    4     magic "GPTB"
//	0x04    4     format version (uint32, little-endian)
//	0x08    8     header size N (uint64, little-endian)
//	0x10    N     JSON header (kind, tensor metadata, optimizer metadata)
//	0x10+N  M     tensor payload, float32 little-endian, in header order
//	...     32    SHA-256 of the payload
//
// A Store maps a checkpoint directory to one blob per parameter id
// ("tensor_<id>.bin"), one optimizer blob ("optimizer.bin") and optional
// JSON sidecars. Files are replaced atomically through a rename.
package serialization
