package types

// Version is the vsixctl release version.
const Version = "0.4.0"

// DefaultToolName is the external packaging tool binary.
const DefaultToolName = "tfx"

// DefaultToolPackage is the npm package that provides DefaultToolName.
const DefaultToolPackage = "tfx-cli"
