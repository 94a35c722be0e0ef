/*Command riocat opens a single container URI through the rio façade and
  writes a physical byte range to stdout.

  Usage: riocat -addr=0x1000 -size=256 ihex://firmware.hex
*/
package main
