// Package plan defines the startup plan domain shared by the generators,
// assembler, persistence layer and directory.
//
// A plan is built from independently fetched sections. The overview is the
// only section a plan cannot exist without; every other section may be absent
// permanently when its generator failed. The website prompt is settled after
// the rest of the plan and may still be pending when a plan is first returned.
//
// Two storage shapes exist for saved plans. This package only exposes the
// canonical one: SavedPlanRecord with the Bundle fields at the top level.
// Translation to and from the hosted and on-device shapes happens in the
// persistence package.
package plan
