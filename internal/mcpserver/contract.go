package mcpserver

// MacroFormatContract describes the canonical macro JSON format that
// LLM consumers should follow when creating macros.
const MacroFormatContract = `# Replayd Macro Format Contract

Every macro submitted to replayd MUST follow this structure.

## Structure

` + "```" + `json
{
  "name": "Open settings",
  "description": "Optional free text",
  "steps": [
    {"order": 1, "action": {"type": "click", "x": 100, "y": 200, "display_id": "0", "click_type": "left", "click_count": 1}},
    {"order": 2, "action": {"type": "delay", "duration_ms": 750}},
    {"order": 3, "action": {"type": "text", "text": "hello"}},
    {"order": 4, "action": {"type": "keyboard", "key": "enter", "with_ctrl": false}}
  ]
}
` + "```" + `

## Rules

1. **Step order is mandatory and unique.** Steps execute in ascending
   ` + "`" + `order` + "`" + `; duplicate order values are rejected.
2. **Action type** is one of ` + "`" + `click` + "`" + `, ` + "`" + `keyboard` + "`" + `, ` + "`" + `text` + "`" + `, ` + "`" + `delay` + "`" + `.
   Unknown types are rejected.
3. **Click coordinates are display-relative.** ` + "`" + `x` + "`" + `/` + "`" + `y` + "`" + ` are offsets
   within the monitor named by ` + "`" + `display_id` + "`" + `. If the display is gone at
   playback time the primary display is used instead.
4. **Click fields:** ` + "`" + `click_type` + "`" + ` is ` + "`" + `left` + "`" + `, ` + "`" + `right` + "`" + ` or ` + "`" + `double` + "`" + `;
   ` + "`" + `click_count` + "`" + ` defaults to 1. A ` + "`" + `double` + "`" + ` click is always exactly two
   left clicks regardless of ` + "`" + `click_count` + "`" + `.
5. **Clicks may reference a target** via ` + "`" + `target_id` + "`" + `. When set, the
   target's current coordinates win over the literal ones; a dangling
   target ID falls back to the literal coordinates.
6. **Keyboard fields:** ` + "`" + `key` + "`" + ` is a key name (e.g. ` + "`" + `enter` + "`" + `, ` + "`" + `f5` + "`" + `, ` + "`" + `a` + "`" + `);
   modifiers are the booleans ` + "`" + `with_shift` + "`" + `, ` + "`" + `with_ctrl` + "`" + `, ` + "`" + `with_alt` + "`" + `,
   ` + "`" + `with_meta` + "`" + `.
7. **Delays** are integer milliseconds and are scaled by the playback
   speed (a 500 ms delay at 2x speed waits 250 ms).
8. **Step IDs are optional** on input; the server assigns them.

## Example

A macro that focuses a search box on the second monitor and submits a
query:

` + "```" + `json
{
  "name": "Search inventory",
  "steps": [
    {"order": 1, "action": {"type": "click", "x": 400, "y": 60, "display_id": "1", "click_type": "left", "click_count": 1}},
    {"order": 2, "action": {"type": "text", "text": "widgets"}},
    {"order": 3, "action": {"type": "keyboard", "key": "enter"}}
  ]
}
` + "```" + `
`
