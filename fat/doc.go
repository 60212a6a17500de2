// Package fat implements a FAT16 style file system that lives entirely
// inside one fixed-size byte buffer. The buffer is split into a boot
// sector, one or more copies of the file allocation table, a fixed root
// directory region and a data region made of clusters.
//
// Every operation reads and writes the buffer directly, so a buffer can be
// persisted and mounted again later (see the image package).
//
// Files occupy a single cluster. Directories grow one cluster at a time.
// Deleting an entry sets a flag on it and on every cluster of its chain,
// which keeps the content around until Undelete reverses it.
//
// Names of up to 11 bytes are stored in the entry itself, longer names
// (up to 255 bytes) use long-name records placed in front of the entry.
// Names are stored in code page 437.
package fat
