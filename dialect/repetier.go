package dialect

// Repetier is the default dialect: it shares Marlin's ok/wait/T:/B: parsing
// rules (AtCore's RepetierPlugin has no parsing of its own beyond what the
// base IFirmware interface already does) but is registered under its own
// name so detection and logging can tell the two apart.
func init() { Register(textual{name: "Repetier"}) }
