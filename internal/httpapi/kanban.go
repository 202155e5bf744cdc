package httpapi

// kanbanHTML is the static Kanban board stub served at GET /.
// It renders workflow/case data purely client-side against this server's
// own JSON endpoints; it carries no templating or build step, matching the
// a read-only convenience view, not a full case-management UI.
const kanbanHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>Orchepy</title>
  <style>
    body { font-family: sans-serif; margin: 2rem; background: #f7f7f9; }
    h1 { font-size: 1.4rem; }
    .board { display: flex; gap: 1rem; overflow-x: auto; }
    .column { background: #fff; border-radius: 6px; padding: .75rem; min-width: 220px; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
    .column h2 { font-size: .9rem; text-transform: uppercase; color: #555; }
    .card { background: #eef1f5; border-radius: 4px; padding: .5rem; margin: .5rem 0; font-size: .85rem; }
    select { margin-bottom: 1rem; }
  </style>
</head>
<body>
  <h1>Orchepy — Kanban</h1>
  <select id="workflow"></select>
  <div class="board" id="board"></div>
  <script>
    async function loadWorkflows() {
      const res = await fetch('/workflows');
      const { workflows } = await res.json();
      const sel = document.getElementById('workflow');
      sel.innerHTML = workflows.map(w => '<option value="' + w.id + '">' + w.name + '</option>').join('');
      sel.onchange = () => renderBoard(sel.value, workflows.find(w => w.id === sel.value));
      if (workflows.length) renderBoard(sel.value, workflows[0]);
    }

    async function renderBoard(workflowId, workflow) {
      const board = document.getElementById('board');
      if (!workflow) { board.innerHTML = ''; return; }
      const res = await fetch('/cases?workflow_id=' + encodeURIComponent(workflowId));
      const { cases } = await res.json();
      board.innerHTML = workflow.phases.map(phase => {
        const inPhase = cases.filter(c => c.current_phase === phase);
        const cards = inPhase.map(c => '<div class="card">' + c.id.slice(0, 8) + '</div>').join('');
        return '<div class="column"><h2>' + phase + ' (' + inPhase.length + ')</h2>' + cards + '</div>';
      }).join('');
    }

    loadWorkflows();
  </script>
</body>
</html>
`
