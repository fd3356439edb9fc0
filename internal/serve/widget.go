package serve

// widgetHTML is the live-edit widget injected into served pages. It posts
// natural-language change requests to the change endpoint and reloads on
// success. The %q placeholder is the document ID.
const widgetHTML = `<div id="pagesmith-edit" style="position:fixed;bottom:16px;right:16px;z-index:9999;font-family:sans-serif">
<button id="pagesmith-edit-toggle" style="padding:8px 14px;border-radius:20px;border:none;background:#111;color:#fff;cursor:pointer">Edit</button>
<form id="pagesmith-edit-form" style="display:none;margin-top:8px;background:#fff;border:1px solid #ddd;border-radius:8px;padding:10px;box-shadow:0 2px 10px rgba(0,0,0,.15)">
<input id="pagesmith-edit-input" type="text" placeholder="Describe a change..." style="width:240px;padding:6px">
<button type="submit" style="padding:6px 10px">Apply</button>
<div id="pagesmith-edit-status" style="font-size:12px;color:#666;margin-top:6px"></div>
</form>
</div>
<script>
(function () {
  var docId = %q;
  var toggle = document.getElementById('pagesmith-edit-toggle');
  var form = document.getElementById('pagesmith-edit-form');
  var input = document.getElementById('pagesmith-edit-input');
  var status = document.getElementById('pagesmith-edit-status');
  toggle.addEventListener('click', function () {
    form.style.display = form.style.display === 'none' ? 'block' : 'none';
  });
  form.addEventListener('submit', function (e) {
    e.preventDefault();
    status.textContent = 'Applying...';
    fetch('/api/documents/' + docId + '/changes', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ instruction: input.value })
    }).then(function (res) { return res.json(); }).then(function (body) {
      if (body.success) { location.reload(); } else { status.textContent = body.summary || 'Could not apply that change.'; }
    }).catch(function () { status.textContent = 'Request failed.'; });
  });
})();
</script>
`
