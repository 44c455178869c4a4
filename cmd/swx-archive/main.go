// swx-archive - Fetch space-weather time series and merge them into local archives
//
// Data sources:
//   - NMDB NEST: neutron monitor counts per station
//   - NOAA SWPC: planetary Kp, GOES protons and X-rays, ACE telemetry
//   - GFZ Potsdam: definitive Kp (API and since-1932 history)
//   - SIDC SILSO: daily sunspot numbers
//
// Build: CGO_ENABLED=0 go build -ldflags="-s -w" -o build/swx-archive ./cmd/swx-archive

package main

func main() {
	Execute()
}
