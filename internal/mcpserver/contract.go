package mcpserver

// NoteFormatContract describes the note layout ntoes reads and writes.
const NoteFormatContract = `# ntoes Note Format

## Layout

Notes live under the notes directory, one folder per year and month:

    <notes>/2024/01 - January/2024-01-05 standup.md

The title starts with an ISO date (YYYY-MM-DD). The file name is the title
plus ` + "`" + `.md` + "`" + `, and the first line is the title as a level-one heading:

` + "```" + `markdown
# 2024-01-05 standup

- [ ] call Bob
- [X] send notes
` + "```" + `

## TODO markers

1. A line containing ` + "`" + `[ ]` + "`" + ` is an open item, unless it also contains ` + "`" + `[X]` + "`" + `.
2. ` + "`" + `[X]` + "`" + ` (capital X) marks a finished item. Finished items are not listed.
3. Leading spaces, tabs and ` + "`" + `+ - * #` + "`" + ` before the marker are allowed.
4. Toggling cycles a line: plain text gains ` + "`" + `[ ] ` + "`" + `, an open marker
   becomes ` + "`" + `[X] ` + "`" + `, a finished marker is removed.

## Aggregated view

show_todo lists notes newest path first. Each note with open items contributes
its file name as a heading, a blank line, the item lines, and a blank line.

## Sync

Every save is committed ("detected changes") and merged with the remote. A
merge that conflicts is committed with its conflict markers ("conflict
markers"); resolve them by editing the note.
`
